// Copyright 2026 The Tagmesh Authors
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"path/filepath"
	"strings"
)

// Type is a coarse content classification. The import path seeds a
// core:type tag from it so peers can filter by kind without any
// plugin.
type Type string

const (
	TypeImage    Type = "image"
	TypeVideo    Type = "video"
	TypeAudio    Type = "audio"
	TypeDocument Type = "document"
	TypeOther    Type = "other"
)

// typeByExtension maps lowercase filename extensions to types.
// Deliberately coarse: anything finer belongs to a plugin namespace.
var typeByExtension = map[string]Type{
	".jpg": TypeImage, ".jpeg": TypeImage, ".png": TypeImage, ".gif": TypeImage,
	".webp": TypeImage, ".bmp": TypeImage, ".tiff": TypeImage, ".svg": TypeImage,
	".heic": TypeImage, ".avif": TypeImage, ".raw": TypeImage,

	".mp4": TypeVideo, ".mkv": TypeVideo, ".webm": TypeVideo, ".avi": TypeVideo,
	".mov": TypeVideo, ".wmv": TypeVideo, ".flv": TypeVideo, ".m4v": TypeVideo,

	".mp3": TypeAudio, ".flac": TypeAudio, ".ogg": TypeAudio, ".opus": TypeAudio,
	".wav": TypeAudio, ".m4a": TypeAudio, ".aac": TypeAudio, ".wma": TypeAudio,

	".pdf": TypeDocument, ".txt": TypeDocument, ".md": TypeDocument,
	".doc": TypeDocument, ".docx": TypeDocument, ".odt": TypeDocument,
	".xls": TypeDocument, ".xlsx": TypeDocument, ".ods": TypeDocument,
	".ppt": TypeDocument, ".pptx": TypeDocument, ".odp": TypeDocument,
	".epub": TypeDocument, ".html": TypeDocument, ".rtf": TypeDocument,
}

// DetectType classifies a filename by extension. Unknown extensions
// (and names without one) are TypeOther.
func DetectType(filename string) Type {
	extension := strings.ToLower(filepath.Ext(filename))
	if t, ok := typeByExtension[extension]; ok {
		return t
	}
	return TypeOther
}
