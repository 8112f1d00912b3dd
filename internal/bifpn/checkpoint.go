package bifpn

import (
	"encoding/json"
	"fmt"

	"github.com/born-ml/bifpn/internal/serialization"
	"github.com/born-ml/bifpn/internal/tensor"
)

// MetadataConfigKey is the safetensors metadata entry holding the JSON
// encoded Config.
const MetadataConfigKey = "bifpn.config"

// SaveOptions controls checkpoint encoding.
type SaveOptions struct {
	// Half stores weights as float16.
	Half bool
}

// Save writes the model state dict and configuration to a safetensors file.
func Save[B tensor.Backend](path string, model *BiFPN[B], opts SaveOptions) error {
	cfgJSON, err := json.Marshal(model.Config())
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	metadata := map[string]string{MetadataConfigKey: string(cfgJSON)}
	if err := serialization.WriteFile(path, model.StateDict(), metadata, serialization.WriteOptions{Half: opts.Half}); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load rebuilds a model from a checkpoint written by Save.
func Load[B tensor.Backend](path string, backend B) (*BiFPN[B], error) {
	file, err := serialization.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	cfgJSON, ok := file.Metadata[MetadataConfigKey]
	if !ok {
		return nil, fmt.Errorf("%w: checkpoint has no %q metadata", ErrConfig, MetadataConfigKey)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal([]byte(cfgJSON), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	model, err := New(cfg, backend)
	if err != nil {
		return nil, err
	}
	if err := model.LoadStateDict(file.Tensors); err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	return model, nil
}
