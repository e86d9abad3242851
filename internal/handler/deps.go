package handler

import (
	"github.com/Davnspvtltd/teamchat/internal/app/chat"
	"github.com/Davnspvtltd/teamchat/internal/app/storage"
	"github.com/Davnspvtltd/teamchat/internal/app/store"
	"github.com/Davnspvtltd/teamchat/internal/configs"
)

// AppDeps bundles the shared dependencies every handler closes over.
type AppDeps struct {
	Hub            *chat.Hub
	Config         *configs.AppConfig
	Store          store.Store
	StorageService storage.StorageService
}
