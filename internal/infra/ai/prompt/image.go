package prompt

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/bryanwahyu/adguardian/internal/domain/ai"
)

// DefaultImageType is used when neither the header nor the bytes reveal an image type.
const DefaultImageType = "image/jpeg"

var ErrBadImage = errors.New("image is not valid base64")

// DecodeImage accepts "data:image/png;base64,...." or bare base64.
// The mime type comes from the data URL header, then from the bytes, then DefaultImageType.
func DecodeImage(s string) (ai.Part, error) {
	s = strings.TrimSpace(s)
	header := ""
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return ai.Part{}, ErrBadImage
		}
		header, s = s[len("data:"):comma], s[comma+1:]
	}

	data, err := decodeBase64(s)
	if err != nil || len(data) == 0 {
		return ai.Part{}, ErrBadImage
	}
	return ai.Part{MIMEType: imageType(header, data), Data: data}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' {
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func imageType(header string, data []byte) string {
	// header looks like "image/png;base64"
	if mt, _, _ := strings.Cut(header, ";"); strings.HasPrefix(mt, "image/") {
		return mt
	}
	if mt := mimetype.Detect(data); mt != nil && strings.HasPrefix(mt.String(), "image/") {
		return mt.String()
	}
	return DefaultImageType
}
