package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

// emptyPayloadHash is the SHA-256 of a zero-length body.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

const (
	signingAlgorithm = "AWS4-HMAC-SHA256"
	signingService   = "s3"
)

// signer implements AWS Signature Version 4 for S3-compatible endpoints.
// Only header-based signing is supported; presigned URLs are not needed
// because all object access flows through the proxy.
type signer struct {
	accessKey string
	secretKey string
	region    string
}

func newSigner(accessKey, secretKey, region string) *signer {
	return &signer{accessKey: accessKey, secretKey: secretKey, region: region}
}

func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// sign adds x-amz-date, x-amz-content-sha256 and Authorization headers to req.
func (s *signer) sign(req *http.Request, bodyHash string, now time.Time) {
	amzDate := now.Format("20060102T150405Z")
	dateStamp := now.Format("20060102")

	req.Header.Set("X-Amz-Date", amzDate)
	req.Header.Set("X-Amz-Content-Sha256", bodyHash)

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)

	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req.URL),
		canonicalQuery(req.URL),
		canonicalHeaders,
		signedHeaders,
		bodyHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, s.region, signingService, "aws4_request"}, "/")
	stringToSign := strings.Join([]string{
		signingAlgorithm,
		amzDate,
		scope,
		payloadHash([]byte(canonicalRequest)),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+s.secretKey), dateStamp)
	key = hmacSHA256(key, s.region)
	key = hmacSHA256(key, signingService)
	key = hmacSHA256(key, "aws4_request")
	signature := hex.EncodeToString(hmacSHA256(key, stringToSign))

	req.Header.Set("Authorization", strings.Join([]string{
		signingAlgorithm + " Credential=" + s.accessKey + "/" + scope,
		"SignedHeaders=" + signedHeaders,
		"Signature=" + signature,
	}, ", "))
}

func hmacSHA256(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}

func canonicalURI(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	// Escape each segment but keep the slashes literal.
	segments := strings.Split(u.Path, "/")
	for i, segment := range segments {
		segments[i] = strings.ReplaceAll(url.QueryEscape(segment), "+", "%20")
	}
	return strings.Join(segments, "/")
}

func canonicalQuery(u *url.URL) string {
	values := u.Query()
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		vals := values[key]
		sort.Strings(vals)
		for _, val := range vals {
			pairs = append(pairs, encodeRFC3986(key)+"="+encodeRFC3986(val))
		}
	}
	return strings.Join(pairs, "&")
}

func encodeRFC3986(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func canonicalizeHeaders(req *http.Request) (canonical string, signed string) {
	headers := map[string][]string{
		"host": {req.URL.Host},
	}
	for name, values := range req.Header {
		lower := strings.ToLower(name)
		switch lower {
		case "content-type", "content-md5":
			headers[lower] = values
		default:
			if strings.HasPrefix(lower, "x-amz-") {
				headers[lower] = values
			}
		}
	}

	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		trimmed := make([]string, len(headers[name]))
		for i, value := range headers[name] {
			trimmed[i] = strings.TrimSpace(value)
		}
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(trimmed, ","))
		b.WriteString("\n")
	}

	return b.String(), strings.Join(names, ";")
}
