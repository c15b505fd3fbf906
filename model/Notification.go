package model

import (
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type NotificationType string

const (
	// NotificationTypeBlock is sent when a block becomes the tip.
	NotificationTypeBlock NotificationType = "block"
	// NotificationTypeReorg is sent once a reorganization has switched the best chain.
	NotificationTypeReorg NotificationType = "reorg"
)

type Notification struct {
	Type   NotificationType
	Hash   *chainhash.Hash
	Height uint32
}
