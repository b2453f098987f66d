// Package storage 基于 Cloudinary 的媒体存储：上传与交付 URL 生成
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	cldconfig "github.com/cloudinary/cloudinary-go/v2/config"

	"zivo/app/models/media"
)

// 图片交付的优化参数
const (
	previewWidth = 800
	thumbWidth   = 200
)

var eagerAsyncFalse = false

// Client Cloudinary 客户端
type Client struct {
	cloudName string
	uploader  *uploader.API
}

// New 根据凭证创建客户端
func New(cloudName, apiKey, apiSecret string) (*Client, error) {
	cfg, err := cldconfig.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, err
	}
	up, err := uploader.NewWithConfiguration(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cloudName: cloudName, uploader: up}, nil
}

// UploadResult 上传结果
type UploadResult struct {
	PublicID string
	URL      string
	Preview  string
}

// Upload 上传媒体文件并生成优化的预览版本
func (c *Client) Upload(ctx context.Context, file io.Reader, folder, publicID string) (*UploadResult, error) {
	result, err := c.uploader.Upload(ctx, file, uploader.UploadParams{
		Folder:     folder,
		PublicID:   publicID,
		Eager:      fmt.Sprintf("q_auto,f_auto,w_%d,c_fill", previewWidth),
		EagerAsync: &eagerAsyncFalse,
	})
	if err != nil {
		return nil, err
	}

	preview := ""
	if len(result.Eager) > 0 {
		preview = result.Eager[0].SecureURL
	}
	if preview == "" {
		preview = c.optimizedURL(result.PublicID, thumbWidth)
	}

	return &UploadResult{
		PublicID: result.PublicID,
		URL:      result.SecureURL,
		Preview:  preview,
	}, nil
}

// DownloadURL 生成媒体的原件下载 URL。
// 带 fl_attachment 变换，浏览器会下载而不是内联展示；
// 只应对已完成支付的媒体暴露
func (c *Client) DownloadURL(m *media.Media) string {
	publicID := publicIDOf(m)
	if publicID == "" {
		return ""
	}
	return fmt.Sprintf("https://res.cloudinary.com/%s/%s/upload/fl_attachment/%s",
		c.cloudName, resourceType(m), publicID)
}

// PreviewURL 生成媒体的优化预览 URL，支付前后均可访问
func (c *Client) PreviewURL(m *media.Media) string {
	publicID := publicIDOf(m)
	if publicID == "" {
		return ""
	}
	if resourceType(m) == "video" {
		return fmt.Sprintf("https://res.cloudinary.com/%s/video/upload/q_auto:low,f_auto/%s",
			c.cloudName, publicID)
	}
	return c.optimizedURL(publicID, previewWidth)
}

// optimizedURL 带自动质量/格式和宽度裁剪的图片 URL
func (c *Client) optimizedURL(publicID string, width int) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/q_auto,f_auto,w_%d,c_fill/%s",
		c.cloudName, width, publicID)
}

// publicIDOf 媒体记录的存储路径即 Cloudinary public id
func publicIDOf(m *media.Media) string {
	return strings.TrimPrefix(m.Path, "/")
}

// resourceType 根据 MIME 类型推断 Cloudinary 资源类型
func resourceType(m *media.Media) string {
	if strings.HasPrefix(m.MimeType, "video/") {
		return "video"
	}
	return "image"
}
