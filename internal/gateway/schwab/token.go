package schwab

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// FileTokenSource reads the access token from a token file maintained by an
// external OAuth refresher. The file is re-read on every call so a rotated
// token is picked up without a restart.
type FileTokenSource struct {
	Path string
}

func (f *FileTokenSource) Token(_ context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", err
	}
	token := gjson.GetBytes(data, "access_token").String()
	if token == "" {
		token = gjson.GetBytes(data, "token.access_token").String()
	}
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("token file %s has no access_token", f.Path)
	}
	return token, nil
}

// StaticTokenSource returns a fixed token. Used in tests.
type StaticTokenSource string

func (s StaticTokenSource) Token(_ context.Context) (string, error) {
	return string(s), nil
}
