package cache

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
)

// bufferedWriter holds the response body back so the ETag can be set
// before anything reaches the client.
type bufferedWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *bufferedWriter) Write(b []byte) (int, error) {
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	return w.body.WriteString(s)
}

func (w *bufferedWriter) WriteHeader(code int) {
	w.status = code
}

func (w *bufferedWriter) WriteHeaderNow() {}

func (w *bufferedWriter) Status() int {
	return w.status
}

func (w *bufferedWriter) Size() int {
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool {
	return w.body.Len() > 0
}

// Tag returns the strong ETag for body.
func Tag(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}

// ETag tags successful GET responses with a hash of their body and answers
// 304 Not Modified when the client already holds that version.
func ETag() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		original := c.Writer
		writer := &bufferedWriter{
			ResponseWriter: original,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = writer
		// a panicking handler must leave the real writer in place for Recovery
		defer func() { c.Writer = original }()

		c.Next()

		c.Writer = original
		if writer.status != http.StatusOK {
			original.WriteHeader(writer.status)
			original.Write(writer.body.Bytes())
			return
		}

		tag := Tag(writer.body.Bytes())
		original.Header().Set("ETag", tag)
		if matches(c.GetHeader("If-None-Match"), tag) {
			original.WriteHeader(http.StatusNotModified)
			original.WriteHeaderNow()
			return
		}

		original.WriteHeader(http.StatusOK)
		original.Write(writer.body.Bytes())
	}
}

func matches(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		candidate = strings.TrimPrefix(candidate, "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}
	return false
}
