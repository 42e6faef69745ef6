//go:build windows

package trust

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var storeLocations = []struct {
	name  string
	flags uint32
}{
	{"CurrentUser", windows.CERT_SYSTEM_STORE_CURRENT_USER},
	{"LocalMachine", windows.CERT_SYSTEM_STORE_LOCAL_MACHINE},
}

// SystemStoreSearcher searches the CurrentUser and LocalMachine system stores.
// Stores are opened and closed inside every lookup since their contents may change during a pass.
type SystemStoreSearcher struct {
	stores []string
}

// NewSystemStoreSearcher creates a searcher over the named system stores (DefaultStores when empty)
func NewSystemStoreSearcher(stores []string) *SystemStoreSearcher {
	if len(stores) == 0 {
		stores = DefaultStores
	}
	return &SystemStoreSearcher{stores: stores}
}

// Contains reports whether any searched store holds a certificate with the given SHA-1 thumbprint.
// A store that does not exist on this host is skipped.
func (s *SystemStoreSearcher) Contains(thumbprint string) (bool, error) {
	hash, err := DecodeThumbprint(thumbprint)
	if err != nil {
		return false, err
	}
	blob := windows.CryptHashBlob{Size: uint32(len(hash)), Data: &hash[0]}

	opened := 0
	for _, loc := range storeLocations {
		for _, name := range s.stores {
			found, err := storeContains(loc.flags, name, &blob)
			if err != nil {
				continue
			}
			opened++
			if found {
				return true, nil
			}
		}
	}
	if opened == 0 {
		return false, fmt.Errorf("no certificate store could be opened")
	}
	return false, nil
}

func storeContains(location uint32, name string, blob *windows.CryptHashBlob) (bool, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false, err
	}
	store, err := windows.CertOpenStore(
		windows.CERT_STORE_PROV_SYSTEM_W,
		0,
		0,
		location|windows.CERT_STORE_READONLY_FLAG|windows.CERT_STORE_OPEN_EXISTING_FLAG,
		uintptr(unsafe.Pointer(namePtr)),
	)
	if err != nil {
		return false, err
	}
	defer windows.CertCloseStore(store, 0)

	cert, err := windows.CertFindCertificateInStore(store, certEncoding, 0,
		windows.CERT_FIND_SHA1_HASH, unsafe.Pointer(blob), nil)
	if err != nil || cert == nil {
		// CRYPT_E_NOT_FOUND
		return false, nil
	}
	windows.CertFreeCertificateContext(cert)
	return true, nil
}
