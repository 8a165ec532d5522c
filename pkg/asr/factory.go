package asr

import (
	"errors"

	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/models"
	"github.com/ccp-p/asr-media-cli/mic-eval/pkg/utils"
)

// BuildRegistry 按配置注册后端：本地服务总是注册，云端服务仅在配置了密钥时注册
func BuildRegistry(cfg *models.Config) (*Registry, error) {
	registry := NewRegistry()

	if err := registry.Register(NewLocalWhisperBackendFromConfig(cfg), 0); err != nil {
		return nil, err
	}

	cloud, err := NewOpenAIWhisperBackendFromConfig(cfg)
	switch {
	case errors.Is(err, utils.ErrCredentialMissing):
		utils.Info("未配置 OpenAI API 密钥，跳过云端识别")
	case err != nil:
		return nil, err
	default:
		if err := registry.Register(cloud, cfg.CloudConcurrency); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
