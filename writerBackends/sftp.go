package writerbackends

import (
	"context"
	"fmt"
	"io"
	"net"
	"path"
	"time"

	"pixconv/logger"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// UploadToSFTPWithCreds uploads content to a remote server via SFTP.
// accessInfo should contain at least: host, user, remoteDir. Optionally: port
// (default 22), password or privateKey (base64 or raw PEM), hostKey (an
// authorized_keys line to pin the server key).
func UploadToSFTPWithCreds(ctx context.Context, accessInfo map[string]string, name string, reader io.Reader) error {
	config, addr, err := sshConfig(accessInfo)
	if err != nil {
		return err
	}
	remotePath := path.Join(accessInfo["remoteDir"], name)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("create sftp client: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", path.Dir(remotePath), err)
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, ctxReader{ctx: ctx, r: reader}); err != nil {
		return fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}

	logger.Infof("[writer] uploaded '%s' to %s", remotePath, addr)
	return nil
}

func sshConfig(accessInfo map[string]string) (*ssh.ClientConfig, string, error) {
	host, user := accessInfo["host"], accessInfo["user"]
	if host == "" || user == "" || accessInfo["remoteDir"] == "" {
		return nil, "", fmt.Errorf("missing required accessInfo keys: host, user, remoteDir")
	}
	port := accessInfo["port"]
	if port == "" {
		port = "22"
	}

	var auths []ssh.AuthMethod
	switch {
	case accessInfo["privateKey"] != "":
		signer, err := ssh.ParsePrivateKey(decodeMaybeBase64(accessInfo["privateKey"]))
		if err != nil {
			return nil, "", fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case accessInfo["password"] != "":
		auths = append(auths, ssh.Password(accessInfo["password"]))
	default:
		return nil, "", fmt.Errorf("no auth method provided; set password or privateKey in accessInfo")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if line := accessInfo["hostKey"]; line != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, "", fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(key)
	} else {
		logger.Warnf("[writer] sftp host key for %s is not pinned", host)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, net.JoinHostPort(host, port), nil
}
