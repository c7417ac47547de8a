package handler

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SuperTylerX/COMP445-A2/internal/filelock"
	"github.com/SuperTylerX/COMP445-A2/internal/mimetype"
	"github.com/SuperTylerX/COMP445-A2/internal/protocol"
	"github.com/SuperTylerX/COMP445-A2/internal/resolve"
)

type fixture struct {
	root     string
	resolver *resolve.Resolver
	d        *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "line one\r\nline two\nend")
	if err := os.Mkdir(filepath.Join(root, "b"), 0o755); err != nil {
		t.Fatal(err)
	}

	r, err := resolve.New(root)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		root:     root,
		resolver: r,
		d: &Dispatcher{
			Locks: filelock.NewController(nil),
			MIME:  mimetype.Lookup,
		},
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) do(method, path, body string) *protocol.Response {
	req := &protocol.Request{Method: method, Path: path, Headers: map[string]string{}, Body: []byte(body)}
	return f.d.Dispatch(req, f.resolver.Resolve(path))
}

func TestDispatchOutcomes(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		status string
		body   string
	}{
		{"get file", "GET", "/a.txt", "200 OK", "line oneline twoend"},
		{"get missing", "GET", "/nope.txt", "404 Not Found", "404 File does not exist!"},
		{"traversal get", "GET", "/../../etc/passwd", "403 Forbidden", "Forbidden"},
		{"traversal post", "POST", "/../escape.txt", "403 Forbidden", "Forbidden"},
		{"post onto directory", "POST", "/b", "403 Forbidden", "The file could not be created because there is a folder with the same name"},
		{"delete", "DELETE", "/a.txt", "405 Method Not Allowed", "Method Not Allowed"},
		{"lowercase method", "get", "/a.txt", "405 Method Not Allowed", "Method Not Allowed"},
		{"put on missing", "PUT", "/nope.txt", "405 Method Not Allowed", "Method Not Allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.do(tt.method, tt.path, "")
			if resp.Status != tt.status {
				t.Errorf("status = %q, want %q", resp.Status, tt.status)
			}
			if string(resp.Body) != tt.body {
				t.Errorf("body = %q, want %q", resp.Body, tt.body)
			}
			if resp.Headers["content-length"] != strconv.Itoa(len(resp.Body)) {
				t.Errorf("content-length = %s, body is %d bytes", resp.Headers["content-length"], len(resp.Body))
			}
		})
	}

	if info, err := os.Stat(filepath.Join(f.root, "b")); err != nil || !info.IsDir() {
		t.Errorf("directory b was disturbed: %v", err)
	}
}

func TestFixedOutcomeHeaders(t *testing.T) {
	f := newFixture(t)
	for _, resp := range []*protocol.Response{
		f.do("GET", "/nope", ""),
		f.do("GET", "/../x", ""),
		f.do("PATCH", "/a.txt", ""),
		f.do("POST", "/b", ""),
	} {
		if resp.Headers["content-type"] != "text/plain" || resp.Headers["content-disposition"] != "inline" {
			t.Errorf("%s: headers = %v", resp.Status, resp.Headers)
		}
	}
}

func TestGetFileHeaders(t *testing.T) {
	f := newFixture(t)
	resp := f.do("GET", "/a.txt", "")
	if got := resp.Headers["content-type"]; got != "text/plain" {
		t.Errorf("content-type = %q", got)
	}
	if got := resp.Headers["content-disposition"]; got != "attachment; filename=a.txt" {
		t.Errorf("content-disposition = %q", got)
	}

	mustWrite(t, filepath.Join(f.root, "README"), "no extension")
	resp = f.do("GET", "/README", "")
	if _, ok := resp.Headers["content-type"]; ok {
		t.Errorf("unexpected content-type %q for unknown type", resp.Headers["content-type"])
	}
}

func TestExactReads(t *testing.T) {
	f := newFixture(t)
	f.d.ExactReads = true
	resp := f.do("GET", "/a.txt", "")
	if string(resp.Body) != "line one\r\nline two\nend" {
		t.Errorf("body = %q", resp.Body)
	}
}

func TestListing(t *testing.T) {
	f := newFixture(t)
	resp := f.do("GET", "/", "")
	if resp.Status != "200 OK" {
		t.Fatalf("status = %q", resp.Status)
	}
	body := string(resp.Body)
	for _, want := range []string{"File: a.txt\r\n", "Directory: b\r\n"} {
		if !strings.Contains(body, want) {
			t.Errorf("listing %q lacks %q", body, want)
		}
	}
	if resp.Headers["content-type"] != "text/plain" || resp.Headers["content-disposition"] != "inline" {
		t.Errorf("headers = %v", resp.Headers)
	}

	empty := f.do("GET", "/b", "")
	if empty.Status != "200 OK" || len(empty.Body) != 0 {
		t.Errorf("empty dir: %q %q", empty.Status, empty.Body)
	}
}

func TestListingCaseInsensitiveOrder(t *testing.T) {
	f := newFixture(t)
	mustWrite(t, filepath.Join(f.root, "b", "Zeta"), "")
	mustWrite(t, filepath.Join(f.root, "b", "alpha"), "")
	mustWrite(t, filepath.Join(f.root, "b", "Beta"), "")

	resp := f.do("GET", "/b", "")
	want := "File: alpha\r\nFile: Beta\r\nFile: Zeta\r\n"
	if string(resp.Body) != want {
		t.Errorf("body = %q, want %q", resp.Body, want)
	}
}

func TestPostThenGet(t *testing.T) {
	f := newFixture(t)

	resp := f.do("POST", "/f.txt", "hello world")
	if resp.Status != "200 OK" {
		t.Fatalf("POST status = %q body %q", resp.Status, resp.Body)
	}
	if string(resp.Body) != "Successfully written to file f.txt" {
		t.Errorf("POST body = %q", resp.Body)
	}

	resp = f.do("GET", "/f.txt", "")
	if resp.Status != "200 OK" || string(resp.Body) != "hello world" {
		t.Errorf("GET = %q %q", resp.Status, resp.Body)
	}
}

func TestPostOverwritesNeverAppends(t *testing.T) {
	f := newFixture(t)
	f.do("POST", "/f.txt", "a much longer first body")
	f.do("POST", "/f.txt", "short")

	got, err := os.ReadFile(filepath.Join(f.root, "f.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "short" {
		t.Errorf("file = %q, want %q", got, "short")
	}

	f.do("POST", "/f.txt", "")
	if got, _ := os.ReadFile(filepath.Join(f.root, "f.txt")); len(got) != 0 {
		t.Errorf("empty POST left %q", got)
	}
}

func TestPostCreatesParents(t *testing.T) {
	f := newFixture(t)
	resp := f.do("POST", "/x/y/z.txt", "deep")
	if resp.Status != "200 OK" {
		t.Fatalf("status = %q body %q", resp.Status, resp.Body)
	}
	got, err := os.ReadFile(filepath.Join(f.root, "x", "y", "z.txt"))
	if err != nil || string(got) != "deep" {
		t.Errorf("ReadFile = %q, %v", got, err)
	}
}

func TestPostUnderFileParentFails(t *testing.T) {
	f := newFixture(t)
	resp := f.do("POST", "/a.txt/child", "x")
	if resp.Status != "500 Internal Server Error" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestPostConflict(t *testing.T) {
	f := newFixture(t)
	path := f.resolver.Resolve("/a.txt").Path

	h, err := f.d.Locks.Acquire(path, filelock.Shared, filelock.Policy{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	resp := f.do("POST", "/a.txt", "clobber")
	if resp.Status != "409 Conflict" || string(resp.Body) != "Other thread is processing the file" {
		t.Errorf("got %q %q", resp.Status, resp.Body)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "line one\r\nline two\nend" {
		t.Errorf("contended POST changed the file: %q", got)
	}
}

func TestContendedPostCreatesNothing(t *testing.T) {
	f := newFixture(t)
	mustMkdir(t, filepath.Join(f.root, "x", "y"))
	mustWrite(t, filepath.Join(f.root, "x", "y", "z.txt"), "held")
	path := f.resolver.Resolve("/x/y/z.txt").Path

	h, err := f.d.Locks.Acquire(path, filelock.Shared, filelock.Policy{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()
	if err := os.RemoveAll(filepath.Join(f.root, "x")); err != nil {
		t.Fatal(err)
	}

	if resp := f.do("POST", "/x/y/z.txt", "new"); resp.Status != "409 Conflict" {
		t.Errorf("status = %q", resp.Status)
	}
	if _, err := os.Stat(filepath.Join(f.root, "x")); !os.IsNotExist(err) {
		t.Errorf("rejected POST created directories: %v", err)
	}
}

func TestGetRetryExhausted(t *testing.T) {
	f := newFixture(t)
	f.d.Read = filelock.Policy{Retries: 2, Backoff: 5 * time.Millisecond}
	path := f.resolver.Resolve("/a.txt").Path

	h, err := f.d.Locks.Acquire(path, filelock.Exclusive, filelock.Policy{})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Release()

	if resp := f.do("GET", "/a.txt", ""); resp.Status != "500 Internal Server Error" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestLocksReleasedOnEveryPath(t *testing.T) {
	f := newFixture(t)
	path := f.resolver.Resolve("/a.txt").Path

	f.do("GET", "/a.txt", "")
	f.do("POST", "/a.txt", "new")
	f.do("POST", "/a.txt/child", "x")

	if readers, writer := f.d.Locks.Held(path); readers != 0 || writer {
		t.Errorf("lock leaked: readers=%d writer=%v", readers, writer)
	}
}

func TestConcurrentGets(t *testing.T) {
	f := newFixture(t)
	f.d.Read = filelock.Policy{Settle: 50 * time.Millisecond}

	var wg sync.WaitGroup
	statuses := make([]string, 5)
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = f.do("GET", "/a.txt", "").Status
		}(i)
	}
	wg.Wait()

	for i, s := range statuses {
		if s != "200 OK" {
			t.Errorf("reader %d got %q", i, s)
		}
	}
}

func TestJoinLines(t *testing.T) {
	for in, want := range map[string]string{
		"":               "",
		"abc":            "abc",
		"a\nb\n":         "ab",
		"a\r\nb\r\n":     "ab",
		"a\rb":           "ab",
		"\n\n\n":         "",
		"tab\tstays\r\n": "tab\tstays",
	} {
		if got := string(joinLines([]byte(in))); got != want {
			t.Errorf("joinLines(%q) = %q, want %q", in, got, want)
		}
	}
}
