package webapp

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type CanGetStatusCode interface {
	error
	StatusCode() int
}

// recovery turns a panicking servlet or filter into a 500 (or the status the
// panic value carries) and logs it.
func recovery(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			var appErr error
			switch v := rec.(type) {
			case error:
				appErr = v
			default:
				appErr = errors.New(strings.TrimSpace(fmt.Sprintf("%v", v)))
			}

			status := http.StatusInternalServerError
			var sc CanGetStatusCode
			if errors.As(appErr, &sc) {
				status = sc.StatusCode()
			}
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(status, gin.H{
					"code":    status,
					"status":  http.StatusText(status),
					"message": "something went wrong, please try again or contact supporters",
				})
			} else {
				c.Abort()
			}
			if log.DebugEnabled() {
				log.Error("panic recovered: err=%v method=%s path=%s status=%d latency=%s\n%s",
					appErr, c.Request.Method, c.Request.URL.Path, status, time.Since(start), debug.Stack())
				return
			}
			log.Error("panic recovered: err=%v method=%s path=%s status=%d latency=%s",
				appErr, c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}()
		c.Next()
	}
}

func requestLogger(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		log.Debug("%s %s -> %d (%s)", method, path, c.Writer.Status(), time.Since(start))
	}
}
