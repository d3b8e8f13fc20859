package visualization

import (
	"strings"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		url     string
		want    string
		wantErr bool
	}{
		{"linux", "http://localhost:8080/", "xdg-open http://localhost:8080/", false},
		{"darwin", "http://localhost:8080/", "open http://localhost:8080/", false},
		{"windows", "https://127.0.0.1:1/", "cmd /c start https://127.0.0.1:1/", false},
		{"plan9", "http://localhost/", "", true},
		{"linux", "file:///etc/passwd", "", true},
		{"linux", "javascript:alert(1)", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.goos+" "+tt.url, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := strings.Join(cmd.Args, " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}
