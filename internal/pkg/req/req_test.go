package req

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Davnspvtltd/teamchat/internal/pkg/errs"
)

type bindTarget struct {
	Name string `json:"name"`
}

func TestBindJSON(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
	}{
		{"valid", "application/json", `{"name":"x"}`, 0},
		{"wrong content type", "text/plain", `{"name":"x"}`, errs.ErrUnsupportedMediaType},
		{"syntax error", "application/json", `{"name":`, errs.ErrInvalidJSONFormat},
		{"unknown field", "application/json", `{"name":"x","extra":1}`, errs.ErrInvalidJSONFormat},
		{"trailing content", "application/json", `{"name":"x"}{"name":"y"}`, errs.ErrExtraContentInBody},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", strings.NewReader(tc.body))
			r.Header.Set("Content-Type", tc.contentType)

			var dst bindTarget
			customErr := BindJSON(r, &dst)

			if tc.wantCode == 0 {
				if customErr != nil {
					t.Fatalf("BindJSON = %+v, want nil", customErr)
				}
				if dst.Name != "x" {
					t.Fatalf("bound name = %q, want x", dst.Name)
				}
				return
			}

			if customErr == nil || customErr.Code != tc.wantCode {
				t.Fatalf("BindJSON error = %+v, want code %d", customErr, tc.wantCode)
			}
		})
	}
}

func TestPathInt64(t *testing.T) {
	if id, customErr := PathInt64("42"); customErr != nil || id != 42 {
		t.Fatalf("PathInt64(42) = %d, %+v", id, customErr)
	}

	for _, bad := range []string{"", "abc", "0", "-5", "1.5"} {
		if _, customErr := PathInt64(bad); customErr == nil {
			t.Fatalf("PathInt64(%q) accepted invalid input", bad)
		}
	}
}
