//go:build windows

package trust

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
)

// ── Message parameters via crypt32.dll ───────────────────────────────────────

var (
	modcrypt32           = windows.NewLazySystemDLL("crypt32.dll")
	procCryptMsgGetParam = modcrypt32.NewProc("CryptMsgGetParam")
	procCryptMsgClose    = modcrypt32.NewProc("CryptMsgClose")
)

const (
	cmsgSignerCertInfoParam = 7
	certX500NameStr         = 3
	certEncoding            = windows.X509_ASN_ENCODING | windows.PKCS_7_ASN_ENCODING
)

// SystemVerifier verifies signatures with WinVerifyTrust
type SystemVerifier struct{}

// NewSystemVerifier creates the WinVerifyTrust-backed verifier
func NewSystemVerifier() *SystemVerifier {
	return &SystemVerifier{}
}

// VerifyEmbedded verifies the file's own Authenticode signature with revocation checks disabled,
// then reads the leaf signer from the embedded PKCS#7 message.
func (v *SystemVerifier) VerifyEmbedded(path string) (Signature, error) {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Signature{}, err
	}

	fileInfo := windows.WinTrustFileInfo{
		Size:     uint32(unsafe.Sizeof(windows.WinTrustFileInfo{})),
		FilePath: pathPtr,
	}
	data := windows.WinTrustData{
		Size:                            uint32(unsafe.Sizeof(windows.WinTrustData{})),
		UIChoice:                        windows.WTD_UI_NONE,
		RevocationChecks:                windows.WTD_REVOKE_NONE,
		UnionChoice:                     windows.WTD_CHOICE_FILE,
		FileOrCatalogOrBlobOrSgnrOrCert: unsafe.Pointer(&fileInfo),
		StateAction:                     windows.WTD_STATEACTION_VERIFY,
		ProvFlags:                       windows.WTD_CACHE_ONLY_URL_RETRIEVAL,
	}

	err = verifyTrust(&data)
	runtime.KeepAlive(&fileInfo)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: %v", ErrNotSigned, err)
	}

	sig, err := readSigner(pathPtr)
	if err != nil {
		// The chain verified but the signer could not be read back; no thumbprint means NotSigned
		logger.Debug("Trust: signer of %s unreadable: %v", path, err)
		return Signature{}, nil
	}
	return sig, nil
}

// verifyTrust runs WinVerifyTrust and always releases the verification state
func verifyTrust(data *windows.WinTrustData) error {
	action := windows.WINTRUST_ACTION_GENERIC_VERIFY_V2
	defer func() {
		data.StateAction = windows.WTD_STATEACTION_CLOSE
		windows.WinVerifyTrustEx(windows.InvalidHWND, &action, data)
	}()
	return windows.WinVerifyTrustEx(windows.InvalidHWND, &action, data)
}

// readSigner extracts the signer certificate of the embedded signature
func readSigner(pathPtr *uint16) (Signature, error) {
	var encoding, contentType, formatType uint32
	var store, msg windows.Handle

	err := windows.CryptQueryObject(
		windows.CERT_QUERY_OBJECT_FILE,
		unsafe.Pointer(pathPtr),
		windows.CERT_QUERY_CONTENT_FLAG_PKCS7_SIGNED_EMBED,
		windows.CERT_QUERY_FORMAT_FLAG_BINARY,
		0,
		&encoding,
		&contentType,
		&formatType,
		&store,
		&msg,
		nil,
	)
	if err != nil {
		return Signature{}, fmt.Errorf("CryptQueryObject: %w", err)
	}
	defer windows.CertCloseStore(store, 0)
	defer procCryptMsgClose.Call(uintptr(msg))

	var size uint32
	r, _, e := procCryptMsgGetParam.Call(uintptr(msg), cmsgSignerCertInfoParam, 0, 0, uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return Signature{}, fmt.Errorf("CryptMsgGetParam size: %w", e)
	}
	if size < uint32(unsafe.Sizeof(windows.CertInfo{})) {
		return Signature{}, fmt.Errorf("CryptMsgGetParam: short signer info (%d bytes)", size)
	}
	buf := make([]byte, size)
	r, _, e = procCryptMsgGetParam.Call(uintptr(msg), cmsgSignerCertInfoParam, 0,
		uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return Signature{}, fmt.Errorf("CryptMsgGetParam: %w", e)
	}

	info := (*windows.CertInfo)(unsafe.Pointer(&buf[0]))
	cert, err := windows.CertFindCertificateInStore(store, encoding, 0,
		windows.CERT_FIND_SUBJECT_CERT, unsafe.Pointer(info), nil)
	runtime.KeepAlive(buf)
	if err != nil {
		return Signature{}, fmt.Errorf("CertFindCertificateInStore: %w", err)
	}
	defer windows.CertFreeCertificateContext(cert)

	return Signature{
		Subject:    certSubject(cert),
		Thumbprint: certThumbprint(cert),
	}, nil
}

// certSubject renders the subject in X.500 form, e.g. "CN=Contoso, O=Contoso, C=US"
func certSubject(cert *windows.CertContext) string {
	strType := uint32(certX500NameStr)
	n := windows.CertGetNameString(cert, windows.CERT_NAME_RDN_TYPE, 0, unsafe.Pointer(&strType), nil, 0)
	if n <= 1 {
		return ""
	}
	buf := make([]uint16, n)
	windows.CertGetNameString(cert, windows.CERT_NAME_RDN_TYPE, 0, unsafe.Pointer(&strType), &buf[0], n)
	return windows.UTF16ToString(buf)
}

// certThumbprint is the uppercase hex SHA-1 of the DER certificate
func certThumbprint(cert *windows.CertContext) string {
	if cert.EncodedCert == nil || cert.Length == 0 {
		return ""
	}
	sum := sha1.Sum(unsafe.Slice(cert.EncodedCert, cert.Length))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
