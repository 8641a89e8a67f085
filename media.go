/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package herald

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/herald/model"
)

// MediaStore loads media stored ahead of dispatch.
type MediaStore interface {
	GetMediaBlob(ctx context.Context, id string) (*model.MediaBlob, error)
}

// MediaUploader is satisfied by *provider.Client.
type MediaUploader interface {
	UploadMedia(ctx context.Context, creds model.Credentials, data []byte, mimeType string) (string, error)
}

// MediaResolver uploads stored media blobs and returns the provider ids in attachment order.
type MediaResolver struct {
	store    MediaStore
	uploader MediaUploader
}

// NewMediaResolver builds a MediaResolver.
func NewMediaResolver(store MediaStore, uploader MediaUploader) *MediaResolver {
	return &MediaResolver{store: store, uploader: uploader}
}

// ResolveMediaIDs uploads each referenced blob with creds.
// References that already have the shape of a provider id are passed through.
func (m *MediaResolver) ResolveMediaIDs(ctx context.Context, attachments []string, creds model.Credentials) ([]string, error) {
	ids := make([]string, 0, len(attachments))
	for _, ref := range attachments {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if model.IsProviderID(ref) {
			ids = append(ids, ref)
			continue
		}

		blob, err := m.store.GetMediaBlob(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("load media %s: %w", ref, err)
		}
		if blob.AccountKey != "" && creds.AccountKey != "" && blob.AccountKey != creds.AccountKey {
			return nil, fmt.Errorf("media %s belongs to account %s, not %s", ref, blob.AccountKey, creds.AccountKey)
		}

		mediaID, err := m.uploader.UploadMedia(ctx, creds, blob.Data, blob.MimeType)
		if err != nil {
			return nil, fmt.Errorf("upload media %s: %w", ref, err)
		}
		logrus.WithFields(logrus.Fields{"media": ref, "media_id": mediaID}).Debug("media uploaded")
		ids = append(ids, mediaID)
	}
	return ids, nil
}
