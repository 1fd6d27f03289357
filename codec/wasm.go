package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// maxModuleBytes bounds a fetched codec module.
const maxModuleBytes = 64 << 20

// WASMSource fetches <BaseURL>/wasm/<name>.wasm and compiles it with wazero.
//
// A codec module exports:
//
//	alloc(size i32) i32
//	convert(inPtr, inLen, reqPtr, reqLen i32) i64
//
// The request is the JSON encoding of Request. convert returns the output
// location packed as ptr<<32 | len; a zero length signals failure.
type WASMSource struct {
	BaseURL string
	Client  *http.Client

	runtime wazero.Runtime
}

// NewWASMSource creates the shared wazero runtime with WASI available.
func NewWASMSource(ctx context.Context, baseURL string, client *http.Client) *WASMSource {
	if client == nil {
		client = http.DefaultClient
	}
	cfg := wazero.NewRuntimeConfig().WithCoreFeatures(api.CoreFeaturesV2)
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	return &WASMSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		runtime: rt,
	}
}

func (s *WASMSource) Load(ctx context.Context, name string) (Handle, error) {
	url := s.BaseURL + "/wasm/" + name + ".wasm"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	bin, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if len(bin) > maxModuleBytes {
		return nil, fmt.Errorf("module %s exceeds %d bytes", name, maxModuleBytes)
	}

	compiled, err := s.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	exports := compiled.ExportedFunctions()
	for _, fn := range []string{"alloc", "convert"} {
		if _, ok := exports[fn]; !ok {
			_ = compiled.Close(ctx)
			return nil, fmt.Errorf("module %s does not export %s", name, fn)
		}
	}
	return &wasmHandle{name: name, runtime: s.runtime, compiled: compiled}, nil
}

// Close releases the runtime and every compiled module.
func (s *WASMSource) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

type wasmHandle struct {
	name     string
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// Convert runs in a fresh module instance so concurrent calls never share
// linear memory.
func (h *wasmHandle) Convert(ctx context.Context, input []byte, req Request) ([]byte, error) {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions("_initialize")
	mod, err := h.runtime.InstantiateModule(ctx, h.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", h.name, err)
	}
	defer mod.Close(ctx)

	if mod.Memory() == nil {
		return nil, fmt.Errorf("%s exports no memory", h.name)
	}
	inPtr, err := h.write(ctx, mod, input)
	if err != nil {
		return nil, err
	}
	reqPtr, err := h.write(ctx, mod, reqJSON)
	if err != nil {
		return nil, err
	}

	res, err := mod.ExportedFunction("convert").Call(ctx,
		uint64(inPtr), uint64(len(input)), uint64(reqPtr), uint64(len(reqJSON)))
	if err != nil {
		return nil, fmt.Errorf("%s convert: %w", h.name, err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%s convert returned nothing", h.name)
	}
	outPtr, outLen := uint32(res[0]>>32), uint32(res[0])
	if outLen == 0 {
		return nil, fmt.Errorf("%s could not convert %s to %s", h.name, req.SourceFormat, req.TargetFormat)
	}
	out, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("%s returned out of range output", h.name)
	}
	return bytes.Clone(out), nil
}

func (h *wasmHandle) write(ctx context.Context, mod api.Module, data []byte) (uint32, error) {
	res, err := mod.ExportedFunction("alloc").Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%s alloc: %w", h.name, err)
	}
	ptr := uint32(res[0])
	if !mod.Memory().Write(ptr, data) {
		return 0, fmt.Errorf("%s alloc returned out of range pointer", h.name)
	}
	return ptr, nil
}
