package baseline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3 transport covering Get, Put and Copy on a
// path-style endpoint.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failPuts bool
	puts     int
}

func newFakeS3Store(t *testing.T, bucket, key string, opts Options) (*S3Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	require.NoError(t, err)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
		o.RetryMaxAttempts = 1
	})
	return NewS3StoreFromClient(client, bucket, key, opts), fake
}

func (f *fakeS3) get(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	return out
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// path-style: /bucket/key
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch req.Method {
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return xmlResponse(http.StatusNotFound, noSuchKey(key)), nil
		}
		resp := xmlResponse(http.StatusOK, "")
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.Header.Set("Content-Type", "text/tab-separated-values")
		resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
		resp.ContentLength = int64(len(body))
		return resp, nil

	case http.MethodPut:
		if src := req.Header.Get("X-Amz-Copy-Source"); src != "" {
			src, _ = url.PathUnescape(src)
			_, srcKey, _ := strings.Cut(strings.TrimPrefix(src, "/"), "/")
			body, ok := f.objects[srcKey]
			if !ok {
				return xmlResponse(http.StatusNotFound, noSuchKey(srcKey)), nil
			}
			f.objects[key] = bytes.Clone(body)
			return xmlResponse(http.StatusOK,
				`<CopyObjectResult><ETag>"etag"</ETag><LastModified>2024-01-01T00:00:00Z</LastModified></CopyObjectResult>`), nil
		}
		f.puts++
		if f.failPuts {
			return xmlResponse(http.StatusInternalServerError,
				`<Error><Code>InternalError</Code><Message>injected failure</Message></Error>`), nil
		}
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			if body, err = decodeAWSChunked(body); err != nil {
				return nil, err
			}
		}
		f.objects[key] = body
		resp := xmlResponse(http.StatusOK, "")
		resp.Header.Set("ETag", `"etag"`)
		return resp, nil
	}
	return xmlResponse(http.StatusNotImplemented, ""), nil
}

func xmlResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		Header:        http.Header{"Content-Type": {"application/xml"}},
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

func noSuchKey(key string) string {
	return fmt.Sprintf(`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key)
}

// decodeAWSChunked strips aws-chunked framing: <hex>[;ext]\r\n<data>\r\n ... 0\r\n[trailers].
func decodeAWSChunked(b []byte) ([]byte, error) {
	var out []byte
	for {
		line, rest, ok := bytes.Cut(b, []byte("\r\n"))
		if !ok {
			return nil, fmt.Errorf("truncated chunk header")
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		n, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk size %q: %w", sizeHex, err)
		}
		if n == 0 {
			return out, nil
		}
		if int64(len(rest)) < n+2 {
			return nil, fmt.Errorf("truncated chunk")
		}
		out = append(out, rest[:n]...)
		b = rest[n+2:]
	}
}
