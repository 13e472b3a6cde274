package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractImages(t *testing.T) {
	tests := []struct {
		name string
		md   string
		want []string
	}{
		{name: "empty input", md: "", want: []string{}},
		{name: "no images", md: "just some *text*", want: []string{}},
		{
			name: "document order",
			md:   "![a](https://x.dev/one.png) text ![b](http://x.dev/two.jpeg)\n![c](https://x.dev/three.svg)",
			want: []string{"https://x.dev/one.png", "http://x.dev/two.jpeg", "https://x.dev/three.svg"},
		},
		{
			name: "plain links are ignored",
			md:   "[not an image](https://x.dev/shot.png) and ![real](https://x.dev/real.gif)",
			want: []string{"https://x.dev/real.gif"},
		},
		{
			name: "unsupported extension",
			md:   "![video](https://x.dev/clip.mp4) ![pic](https://x.dev/pic.jpg)",
			want: []string{"https://x.dev/pic.jpg"},
		},
		{
			name: "non http scheme",
			md:   "![local](file:///tmp/a.png)",
			want: []string{},
		},
		{
			name: "empty alt text",
			md:   "![](https://user-images.githubusercontent.com/1/abc.png)",
			want: []string{"https://user-images.githubusercontent.com/1/abc.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractImages(tt.md)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstImage(t *testing.T) {
	assert.Nil(t, FirstImage("no pictures here"))

	img := FirstImage("![a](https://x.dev/1.png) ![b](https://x.dev/2.png)")
	require.NotNil(t, img)
	assert.Equal(t, "https://x.dev/1.png", *img)
}
