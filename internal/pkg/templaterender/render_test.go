package templaterender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderString(t *testing.T) {
	out, err := RenderString("{{.Name}} is {{.Missing}}", map[string]string{"Name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Ada is ", out)

	out, err = RenderString("", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSetRender(t *testing.T) {
	s := MustParse(map[string]string{
		"greet": "hello {{.Name}}",
	})
	out, err := s.Render("greet", struct{ Name string }{"Ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello Ada", out)

	_, err = s.Render("absent", nil)
	assert.Error(t, err)
}

func TestMustParsePanicsOnSyntaxError(t *testing.T) {
	assert.Panics(t, func() {
		MustParse(map[string]string{"bad": "{{.Name"})
	})
}
