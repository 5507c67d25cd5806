package output_test

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

func TestRouterBuffersStdout(t *testing.T) {
	t.Parallel()

	console := &bytes.Buffer{}
	router := output.NewRouter(output.RouterConsole(output.Stderr, console))

	router.Send(output.Stdout, "first")
	output.Printf(router, output.Stdout, "%d\t%s", 2, "second")
	router.Send(output.Stderr, "progress")

	assert.Equal(t, "first\n2\tsecond\n", router.Pending(output.Stdout))
	assert.Equal(t, "progress\n", console.String())
	assert.Empty(t, router.Pending(output.Stderr))
}

func TestRouterRenderDrains(t *testing.T) {
	t.Parallel()

	router := output.NewRouter()
	router.Send(output.Stdout, "a")
	_, err := router.Writer(output.Stdout).Write([]byte("raw"))
	require.NoError(t, err)

	got := &bytes.Buffer{}
	require.NoError(t, router.Render(output.Stdout, output.Console(got)))
	assert.Equal(t, "a\nraw", got.String())
	assert.Empty(t, router.Pending(output.Stdout))
}

func TestRouterConsoleStdout(t *testing.T) {
	t.Parallel()

	console := &bytes.Buffer{}
	router := output.NewRouter(output.RouterConsole(output.Stdout, console), output.RouterConsole(output.Stderr, nil))
	router.Send(output.Stdout, "direct")
	router.Send(output.Stderr, "kept")

	assert.Equal(t, "direct\n", console.String())
	assert.Equal(t, "kept\n", router.Pending(output.Stderr))
}

func TestRouterConcurrentSend(t *testing.T) {
	t.Parallel()

	router := output.NewRouter()
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			router.Send(output.Stdout, fmt.Sprint(i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, bytes.Split(bytes.TrimSpace([]byte(router.Pending(output.Stdout))), []byte("\n")), 50)
}

func TestDestinations(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		dst      func(path string) output.Destination
		sent     []string
		want     string
		wantFile bool
	}{
		"file truncates": {
			dst:      func(path string) output.Destination { return output.File(path, false) },
			sent:     []string{"one", "two"},
			want:     "two\n",
			wantFile: true,
		},
		"file appends": {
			dst:      func(path string) output.Destination { return output.File(path, true) },
			sent:     []string{"one", "two"},
			want:     "one\ntwo\n",
			wantFile: true,
		},
		"discard": {
			dst:  func(string) output.Destination { return output.Discard() },
			sent: []string{"gone"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "out.txt")
			for _, text := range tc.sent {
				router := output.NewRouter()
				router.Send(output.Stdout, text)
				require.NoError(t, router.Render(output.Stdout, tc.dst(path)))
				assert.Empty(t, router.Pending(output.Stdout))
			}

			got, err := os.ReadFile(path)
			if !tc.wantFile {
				assert.True(t, os.IsNotExist(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(got))
		})
	}
}

func TestParseStream(t *testing.T) {
	t.Parallel()

	s, err := output.ParseStream("stderr")
	require.NoError(t, err)
	assert.Equal(t, output.Stderr, s)
	assert.Equal(t, "stderr", s.String())

	_, err = output.ParseStream("bogus")
	assert.Error(t, err)
}
