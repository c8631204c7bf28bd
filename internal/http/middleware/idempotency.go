package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key on unsafe requests.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdempotency = "idempotency"
	ctxKeyRateBypass  = "rate.bypass"
)

const defaultIdemMaxLen = 200

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// idemState is what IdempotencyValidator learned about the request. Scope is
// the method and resolved path, so "POST /api/v1/tenancies/t-1/extensions"
// and ".../t-2/extensions" never share a record. Resource is set only when an
// earlier request with the same key already produced one.
type idemState struct {
	Key      string
	Scope    string
	Resource string
}

func idemFrom(c *gin.Context) idemState {
	v, _ := c.Get(ctxKeyIdempotency)
	st, _ := v.(idemState)
	return st
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := idemFrom(c).Key
	return k, k != ""
}

// IdempotencyScope returns the scope the key was checked under.
func IdempotencyScope(c *gin.Context) string { return idemFrom(c).Scope }

// ReplayResource returns the id of the resource a previous request with the
// same key produced.
func ReplayResource(c *gin.Context) (string, bool) {
	r := idemFrom(c).Resource
	return r, r != ""
}

// IsReplay reports whether the request repeats an already served key.
func IsReplay(c *gin.Context) bool {
	_, ok := ReplayResource(c)
	return ok
}

// IdempotencyOptions tunes key validation. Zero values pick a 200 character
// limit and a token charset of letters, digits and ._~-:
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup resolves (userID, scope, key) to a live resource id.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (resourceID string, found bool, err error)

// IdempotencyValidator checks the Idempotency-Key header on unsafe methods and
// records key and scope on the context. When lookup knows the key for the
// calling user the stored resource id is attached as well and the rate
// limiter is told to let the retry through. Lookup errors count as a miss.
//
// Serving the replay and remembering new keys is left to the handlers, which
// know what resource an operation produces.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || !unsafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			SetErrorCode(c, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		st := idemState{Key: key, Scope: c.Request.Method + " " + c.Request.URL.Path}
		if uid := UserID(c); lookup != nil && uid != "" {
			rid, found, err := lookup(c.Request.Context(), uid, st.Scope, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			} else if found {
				st.Resource = rid
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Set(ctxKeyIdempotency, st)
		c.Next()
	}
}

func unsafeMethod(m string) bool {
	switch m {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
