package s3

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const mockBucket = "mock-bucket"

// NewMockForTests returns a Store whose client talks to an in-memory fake
// bucket through a custom http.RoundTripper. It understands the HEAD, GET,
// PUT, DELETE and ListObjectsV2 requests the Store issues.
func NewMockForTests(prefix string) *Store {
	bucket := &fakeBucket{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(defaultRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: mockBucket, prefix: normalizePrefix(prefix)}
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.TrimPrefix(strings.TrimPrefix(req.URL.Path, "/"+mockBucket), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req.URL.Query().Get("prefix"))
	case req.Method == http.MethodHead:
		return b.head(key)
	case req.Method == http.MethodGet:
		return b.get(key)
	case req.Method == http.MethodPut:
		return b.put(key, req)
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (b *fakeBucket) head(key string) (*http.Response, error) {
	obj, ok := b.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil), nil
	}
	return respond(http.StatusOK, obj.header(), nil), nil
}

func (b *fakeBucket) get(key string) (*http.Response, error) {
	obj, ok := b.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil), nil
	}
	return respond(http.StatusOK, obj.header(), bytes.Clone(obj.body)), nil
}

func (b *fakeBucket) put(key string, req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
		if body, err = decodeAWSChunked(body); err != nil {
			return respond(http.StatusBadRequest, nil, nil), nil
		}
	}
	md := make(map[string]string)
	for name, values := range req.Header {
		if lower := strings.ToLower(name); strings.HasPrefix(lower, "x-amz-meta-") && len(values) > 0 {
			md[strings.TrimPrefix(lower, "x-amz-meta-")] = values[0]
		}
	}
	b.objects[key] = fakeObject{
		body:        body,
		contentType: req.Header.Get("Content-Type"),
		metadata:    md,
		modified:    time.Now().UTC().Truncate(time.Second),
	}
	return respond(http.StatusOK, http.Header{"Etag": {etag(body)}}, nil), nil
}

type listResult struct {
	XMLName     xml.Name      `xml:"ListBucketResult"`
	IsTruncated bool          `xml:"IsTruncated"`
	KeyCount    int           `xml:"KeyCount"`
	Contents    []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

func (b *fakeBucket) list(prefix string) (*http.Response, error) {
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	res := listResult{KeyCount: len(keys)}
	for _, k := range keys {
		obj := b.objects[k]
		res.Contents = append(res.Contents, listContent{
			Key:          k,
			Size:         int64(len(obj.body)),
			ETag:         etag(obj.body),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	out, err := xml.Marshal(res)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, out), nil
}

func (o fakeObject) header() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Etag":           {etag(o.body)},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
	}
	if o.contentType != "" {
		h.Set("Content-Type", o.contentType)
	}
	for k, v := range o.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func etag(body []byte) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%x", len(body)))
}

func respond(status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}

// decodeAWSChunked strips the aws-chunked framing: hex size lines (with
// optional ";chunk-signature=" extensions) followed by data, ending with a
// zero-size chunk and optional trailers.
func decodeAWSChunked(b []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(b))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("chunk header: %w", err)
		}
		sizeHex, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		size, err := strconv.ParseInt(sizeHex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("chunk size %q: %w", sizeHex, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("chunk body: %w", err)
		}
		if _, err := r.Discard(2); err != nil {
			return nil, fmt.Errorf("chunk terminator: %w", err)
		}
	}
}
