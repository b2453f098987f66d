package config

import (
	"zivo/pkg/config"
)

func init() {
	config.Add("storage", func() map[string]interface{} {
		return map[string]interface{}{
			// Cloudinary 凭证，cloud_name 为空时不启用媒体交付链接
			"cloudinary_cloud_name": config.Env("CLOUDINARY_CLOUD_NAME", ""),
			"cloudinary_api_key":    config.Env("CLOUDINARY_API_KEY", ""),
			"cloudinary_api_secret": config.Env("CLOUDINARY_API_SECRET", ""),
		}
	})
}
