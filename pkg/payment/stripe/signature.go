package stripe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// VerifySignature 校验回调签名，纯函数，无副作用。
// 签名头格式: t=<unix 时间戳>,v1=<hex 签名>[,v1=...]
// 签名算法: HMAC-SHA256(secret, t + "." + payload)，
// 时间戳超出容忍窗口的请求一律拒绝，防止重放
func (c *Client) VerifySignature(payload []byte, signatureHeader string) bool {
	if c.webhookSecret == "" || signatureHeader == "" {
		return false
	}

	timestamp, signatures := parseSignatureHeader(signatureHeader)
	if timestamp == 0 || len(signatures) == 0 {
		return false
	}

	// 重放窗口检查
	ts := time.Unix(timestamp, 0)
	if time.Since(ts) > c.tolerance || time.Until(ts) > c.tolerance {
		return false
	}

	expected := computeSignature(c.webhookSecret, timestamp, payload)
	for _, sig := range signatures {
		decoded, err := hex.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return true
		}
	}
	return false
}

// parseSignatureHeader 解析签名头中的时间戳和 v1 签名列表
func parseSignatureHeader(header string) (timestamp int64, signatures []string) {
	for _, pair := range strings.Split(header, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "t":
			timestamp, _ = strconv.ParseInt(parts[1], 10, 64)
		case "v1":
			signatures = append(signatures, parts[1])
		}
	}
	return timestamp, signatures
}

// computeSignature 计算签名的期望值
func computeSignature(secret string, timestamp int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
