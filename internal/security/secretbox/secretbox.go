// Package secretbox cifra secretos de configuración (client secrets de
// providers) con NaCl secretbox y una clave maestra tomada del entorno.
// Formato: base64(nonce)|base64(ciphertext).
package secretbox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	secretBoxEnvVar   = "SECRETBOX_MASTER_KEY"
	nonceSize         = 24 // NaCl secretbox nonce
	requiredKeyLength = 32
	sep               = "|"
)

var (
	masterKey     [requiredKeyLength]byte
	keyLoaded     bool
	masterKeyOnce sync.Once
	loadErr       error
	mu            sync.RWMutex
)

// ensureLoaded carga la clave maestra desde SECRETBOX_MASTER_KEY (base64) una sola vez.
func ensureLoaded() error {
	masterKeyOnce.Do(func() {
		kb64 := strings.TrimSpace(os.Getenv(secretBoxEnvVar))
		if kb64 == "" {
			loadErr = fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", secretBoxEnvVar)
			return
		}
		k, err := base64.StdEncoding.DecodeString(kb64)
		if err != nil {
			loadErr = fmt.Errorf("decode %s: %w", secretBoxEnvVar, err)
			return
		}
		if len(k) != requiredKeyLength {
			loadErr = fmt.Errorf("%s debe decodificar a %d bytes, obtuvo %d", secretBoxEnvVar, requiredKeyLength, len(k))
			return
		}
		mu.Lock()
		copy(masterKey[:], k)
		keyLoaded = true
		mu.Unlock()
	})
	return loadErr
}

// IsReady expone si la clave está cargada (útil para healthchecks).
func IsReady() bool {
	mu.RLock()
	defer mu.RUnlock()
	return keyLoaded
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func Encrypt(plainText string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("nonce random: %w", err)
	}

	mu.RLock()
	key := masterKey
	mu.RUnlock()

	ct := secretbox.Seal(nil, []byte(plainText), &nonce, &key)
	return base64.StdEncoding.EncodeToString(nonce[:]) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt descifra un valor producido por Encrypt.
func Decrypt(value string) (string, error) {
	if err := ensureLoaded(); err != nil {
		return "", err
	}
	parts := strings.SplitN(value, sep, 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("secretbox: formato inválido")
	}
	nb, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(nb) != nonceSize {
		return "", fmt.Errorf("secretbox: nonce inválido")
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("secretbox: ciphertext inválido")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], nb)

	mu.RLock()
	key := masterKey
	mu.RUnlock()

	pt, ok := secretbox.Open(nil, ct, &nonce, &key)
	if !ok {
		return "", fmt.Errorf("secretbox: autenticación falló (clave incorrecta o datos corruptos)")
	}
	return string(pt), nil
}

// MaybeDecrypt descifra si el valor parece cifrado (contiene el separador);
// si no, lo retorna tal cual. Permite secrets planos en dev.
func MaybeDecrypt(value string) (string, error) {
	if !strings.Contains(value, sep) {
		return value, nil
	}
	return Decrypt(value)
}

// UnsafeResetForTests limpia el estado global. Solo para tests.
func UnsafeResetForTests() {
	mu.Lock()
	defer mu.Unlock()
	masterKeyOnce = sync.Once{}
	loadErr = nil
	keyLoaded = false
	masterKey = [requiredKeyLength]byte{}
}
