package account

import (
	"mime"
	"strings"

	"github.com/dmitrijs2005/gophchat/internal/backend"
)

var avatarExt = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// AvatarPath is the blob path of a user's avatar, users/{id}/avatar.{ext}.
// Unknown content types get the jpg extension.
func AvatarPath(userID, contentType string) string {
	ext := "jpg"
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if e, ok := avatarExt[strings.ToLower(mt)]; ok {
			ext = e
		}
	}
	return backend.Join("users", userID, "avatar."+ext)
}
