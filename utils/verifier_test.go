package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkreach/models"
)

const targetURL = "https://client.com/product"

func page(body string) []byte {
	return []byte("<html><head></head><body>" + body + "</body></html>")
}

func TestInspectPageFindsLink(t *testing.T) {
	result := InspectPage(page(`<p>Read our <a href="https://client.com/product">full review</a> here.</p>`), targetURL)

	assert.True(t, result.Found)
	assert.Equal(t, "full review", result.AnchorText)
	assert.Equal(t, models.LinkDofollow, result.LinkType)
	assert.False(t, result.IsHidden)
}

func TestInspectPageNoMatch(t *testing.T) {
	result := InspectPage(page(`<a href="https://other.com/product">elsewhere</a>`), targetURL)
	assert.False(t, result.Found)
}

func TestInspectPageMatchesIgnoringWWWAndSlash(t *testing.T) {
	result := InspectPage(page(`<a href="http://www.client.com/product/">review</a>`), targetURL)
	assert.True(t, result.Found)
}

func TestInspectPageRelPrecedence(t *testing.T) {
	cases := map[string]string{
		`rel="nofollow"`:               models.LinkNofollow,
		`rel="ugc nofollow"`:           models.LinkUGC,
		`rel="sponsored ugc nofollow"`: models.LinkSponsored,
		`rel="noopener"`:               models.LinkDofollow,
		``:                             models.LinkDofollow,
	}
	for rel, want := range cases {
		result := InspectPage(page(`<a `+rel+` href="https://client.com/product">x</a>`), targetURL)
		assert.True(t, result.Found, "rel %q", rel)
		assert.Equal(t, want, result.LinkType, "rel %q", rel)
	}
}

func TestInspectPageMetaRobotsDowngradesDofollow(t *testing.T) {
	body := []byte(`<html><head><meta name="robots" content="index, nofollow"></head>` +
		`<body><a href="https://client.com/product">x</a></body></html>`)
	result := InspectPage(body, targetURL)

	assert.True(t, result.Found)
	assert.Equal(t, models.LinkNofollow, result.LinkType)
}

func TestInspectPageDetectsHiddenStyles(t *testing.T) {
	hidden := []string{
		`display:none`,
		`display : none ;color:red`,
		`visibility:hidden`,
		`font-size:0`,
		`opacity:0`,
		`text-indent:-9999px`,
		`position:absolute;left:-5000px`,
	}
	for _, style := range hidden {
		result := InspectPage(page(`<a style="`+style+`" href="https://client.com/product">x</a>`), targetURL)
		assert.True(t, result.Found, "style %q", style)
		assert.True(t, result.IsHidden, "style %q should be hidden", style)
	}

	result := InspectPage(page(`<a style="color:blue;opacity:0.9" href="https://client.com/product">x</a>`), targetURL)
	assert.True(t, result.Found)
	assert.False(t, result.IsHidden)
}

func TestInspectPageHiddenAncestor(t *testing.T) {
	result := InspectPage(page(`<div style="display:none"><a href="https://client.com/product">x</a></div>`), targetURL)
	assert.True(t, result.Found)
	assert.True(t, result.IsHidden)
}

func TestInspectPagePrefersVisibleDuplicate(t *testing.T) {
	body := page(`<div style="display:none"><a href="https://client.com/product">hidden copy</a></div>` +
		`<a href="https://client.com/product">visible copy</a>`)
	result := InspectPage(body, targetURL)

	assert.True(t, result.Found)
	assert.False(t, result.IsHidden)
	assert.Equal(t, "visible copy", result.AnchorText)
}

func TestInspectPageGarbageInput(t *testing.T) {
	result := InspectPage([]byte("not html at all <<<>>"), targetURL)
	assert.False(t, result.Found)

	result = InspectPage(nil, targetURL)
	assert.False(t, result.Found)
}

// A backlink must never be recorded lost when the page could not be
// fetched at all; Verify leaves the row alone and reports the error so
// the queue retries. (Verify would hit the nil DB if it persisted.)
func TestVerifyReturnsErrorWithoutResponse(t *testing.T) {
	bv := &BacklinkVerifier{
		Logger: testLogger(),
		http:   &http.Client{Timeout: time.Second},
	}
	backlink := &models.Backlink{PageURL: "https://127.0.0.1:1/page", TargetURL: targetURL, IsLive: true}

	_, err := bv.Verify(context.Background(), backlink)
	require.Error(t, err)
	assert.True(t, backlink.IsLive)
	assert.False(t, backlink.IsVerified)
	assert.Nil(t, backlink.LastVerifiedAt)
}

func TestVerifyReturnsErrorOnServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	bv := &BacklinkVerifier{
		Logger: testLogger(),
		http:   &http.Client{Timeout: time.Second},
	}
	backlink := &models.Backlink{PageURL: server.URL + "/page", TargetURL: targetURL, IsLive: true}

	_, err := bv.Verify(context.Background(), backlink)
	require.Error(t, err)
	assert.True(t, backlink.IsLive)
}

func TestHostAndPath(t *testing.T) {
	host, path := hostAndPath("https://WWW.Client.com/Product/")
	assert.Equal(t, "client.com", host)
	assert.Equal(t, "/Product", path)

	host, path = hostAndPath("client.com/product")
	assert.Equal(t, "client.com", host)
	assert.Equal(t, "/product", path)

	host, _ = hostAndPath("")
	assert.Empty(t, host)
}
