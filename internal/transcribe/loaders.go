package transcribe

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MrWong99/privanote/pkg/provider/stt"
	"github.com/MrWong99/privanote/pkg/provider/stt/whisper"
)

// NativeLoader loads ggml model files from modelDir into the linked
// whisper.cpp library. threads of zero keeps the library default.
func NativeLoader(modelDir string, threads uint) Loader {
	return func(_ context.Context, size ModelSize) (stt.Provider, error) {
		path := filepath.Join(modelDir, size.FileName())
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("transcribe: model file: %w", err)
		}
		return whisper.NewNative(path, whisper.NativeConfig{Threads: threads})
	}
}

// ServerLoader returns providers backed by the whisper.cpp server at url.
// When modelDir is set the server is asked to load the matching model file,
// which must be visible from the server's file system.
func ServerLoader(url, modelDir string, client *http.Client) Loader {
	return func(ctx context.Context, size ModelSize) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithModel(string(size))}
		if client != nil {
			opts = append(opts, whisper.WithHTTPClient(client))
		}
		p, err := whisper.New(url, opts...)
		if err != nil {
			return nil, err
		}
		if modelDir != "" {
			if err := p.Load(ctx, filepath.Join(modelDir, size.FileName())); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}
