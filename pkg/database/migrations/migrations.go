package migrations

import (
	"zivo/app/models/media"
	"zivo/app/models/payment"
	"zivo/app/models/user"
)

// RegisterTables 返回需要迁移的表的模型列表
func RegisterTables() []interface{} {
	return []interface{}{
		&user.User{},
		&media.Media{},
		&payment.Payment{},
	}
}
