package enricher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const articlePage = `<!DOCTYPE html>
<html>
<head><title>A Long Read</title>
<script>window.tracker = true;</script>
</head>
<body>
<nav><a href="/">Home</a><a href="/about">About</a></nav>
<article>
<h1>A Long Read</h1>
<p>` + longParagraph + `</p>
<p>` + longParagraph + `</p>
<p>` + longParagraph + `</p>
</article>
<footer>Copyright</footer>
</body>
</html>`

const longParagraph = "The quick brown fox jumps over the lazy dog again and again, " +
	"paragraph after paragraph, because readability scoring favors sustained " +
	"blocks of body text over short navigational fragments found elsewhere on the page."

func TestExtractReturnsArticleContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "reader-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articlePage))
	}))
	defer srv.Close()

	e := New(Config{Timeout: 5 * time.Second, UserAgent: "reader-test/1.0"}, zap.NewNop())
	got, err := e.Extract(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Contains(t, got.Text, "quick brown fox")
	require.NotContains(t, got.HTML, "<script")
}

func TestExtractNonOKStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(Config{Timeout: time.Second}, zap.NewNop())
	_, err := e.Extract(context.Background(), srv.URL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 403")
}

func TestExtractRespectsContext(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	e := New(Config{Timeout: 5 * time.Second}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Extract(ctx, srv.URL)
	require.Error(t, err)
}

func TestPrecleanHTMLStripsChrome(t *testing.T) {
	t.Parallel()

	cleaned := precleanHTML(articlePage)
	require.NotContains(t, cleaned, "window.tracker")
	require.NotContains(t, cleaned, "<nav>")
	require.Contains(t, cleaned, "quick brown fox")
}

func TestPrecleanHTMLPassesThroughGarbage(t *testing.T) {
	t.Parallel()

	// Not parseable as a document tree but must not be lost.
	raw := strings.Repeat("\x00", 4)
	require.NotEmpty(t, precleanHTML(raw))
}
