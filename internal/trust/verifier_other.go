//go:build !windows

package trust

// SystemVerifier has no trust provider off Windows
type SystemVerifier struct{}

// NewSystemVerifier creates a verifier that reports ErrUnsupported
func NewSystemVerifier() *SystemVerifier {
	return &SystemVerifier{}
}

// VerifyEmbedded always fails off Windows
func (v *SystemVerifier) VerifyEmbedded(path string) (Signature, error) {
	return Signature{}, ErrUnsupported
}

// VerifyCatalog always fails off Windows
func (v *SystemVerifier) VerifyCatalog(path string) error {
	return ErrUnsupported
}

// SystemStoreSearcher has no certificate stores off Windows
type SystemStoreSearcher struct {
	stores []string
}

// NewSystemStoreSearcher creates a searcher that reports ErrUnsupported
func NewSystemStoreSearcher(stores []string) *SystemStoreSearcher {
	if len(stores) == 0 {
		stores = DefaultStores
	}
	return &SystemStoreSearcher{stores: stores}
}

// Contains always fails off Windows
func (s *SystemStoreSearcher) Contains(thumbprint string) (bool, error) {
	return false, ErrUnsupported
}
