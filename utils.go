package sealink

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"os"
	"time"

	"github.com/op/go-logging"
)

func check(e error) {
	if e != nil {
		panic(e)
	}
}

// toB64 encodes binary material the way everything on the wire and at rest
// is encoded: url-safe base64 without padding.
func toB64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func fromB64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

type xNonce struct {
	bytes *[nonceBytes]byte
	str   string
}

func makeNonce() xNonce {
	xn := xNonce{}

	token := make([]byte, nonceBytes)
	rand.Read(token)
	var nonce [nonceBytes]byte
	copy(nonce[:], token[:nonceBytes])

	xn.bytes = &nonce
	xn.str = toB64(token)

	return xn
}

func nonceSliceConvert(nonce []byte) *[nonceBytes]byte {
	var fNonce [nonceBytes]byte
	copy(fNonce[:], nonce[:nonceBytes])
	return &fNonce
}

func keySliceConvert(slice []byte) *[keyBytes]byte {
	var key [keyBytes]byte
	copy(key[:], slice[:keyBytes])
	return &key
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func fileExists(filename string) bool {
	_, configErr := os.Stat(filename)
	if os.IsNotExist(configErr) {
		return false
	}
	return true
}

// GetIP from http request
func GetIP(r *http.Request) string {
	forwarded := r.Header.Get("X-FORWARDED-FOR")
	if forwarded != "" {
		return forwarded
	}

	return r.RemoteAddr
}

// LoggerConfig sets up the logger configuration.
func LoggerConfig(logLevel int) {
	format := logging.MustStringFormatter(
		`%{color}%{time:15:04:05.000} › %{color:reset}%{message}`,
	)
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend, format)
	leveled := logging.AddModuleLevel(backendFormatter)
	switch {
	case logLevel <= 0:
		leveled.SetLevel(logging.WARNING, progName)
	case logLevel == 1:
		leveled.SetLevel(logging.INFO, progName)
	default:
		leveled.SetLevel(logging.DEBUG, progName)
	}
	logging.SetBackend(leveled)
}
