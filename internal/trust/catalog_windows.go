//go:build windows

package trust

import (
	"encoding/hex"
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// ── Catalog lookup via wintrust.dll ──────────────────────────────────────────

var (
	modwintrust = windows.NewLazySystemDLL("wintrust.dll")

	procCryptCATAdminAcquireContext          = modwintrust.NewProc("CryptCATAdminAcquireContext")
	procCryptCATAdminAcquireContext2         = modwintrust.NewProc("CryptCATAdminAcquireContext2")
	procCryptCATAdminReleaseContext          = modwintrust.NewProc("CryptCATAdminReleaseContext")
	procCryptCATAdminCalcHashFromFileHandle  = modwintrust.NewProc("CryptCATAdminCalcHashFromFileHandle")
	procCryptCATAdminCalcHashFromFileHandle2 = modwintrust.NewProc("CryptCATAdminCalcHashFromFileHandle2")
	procCryptCATAdminEnumCatalogFromHash     = modwintrust.NewProc("CryptCATAdminEnumCatalogFromHash")
	procCryptCATAdminReleaseCatalogContext   = modwintrust.NewProc("CryptCATAdminReleaseCatalogContext")
	procCryptCATCatalogInfoFromContext       = modwintrust.NewProc("CryptCATCatalogInfoFromContext")
)

// Large enough for SHA-256 and SHA-1 file hashes
const maxHashLen = 64

type catalogInfo struct {
	Size        uint32
	CatalogFile [windows.MAX_PATH]uint16
}

type wintrustCatalogInfo struct {
	Size                 uint32
	CatalogVersion       uint32
	CatalogFilePath      *uint16
	MemberTag            *uint16
	MemberFilePath       *uint16
	MemberFile           windows.Handle
	CalculatedFileHash   *byte
	CalculatedFileHashSz uint32
	CatalogContext       uintptr
	CatAdmin             windows.Handle
}

// catalogAdmin is an acquired catalog admin context and the hash algorithm it expects
type catalogAdmin struct {
	handle windows.Handle
	v2     bool
}

func acquireCatalogAdmin() (*catalogAdmin, error) {
	var h windows.Handle
	if procCryptCATAdminAcquireContext2.Find() == nil {
		alg, _ := windows.UTF16PtrFromString("SHA256")
		r, _, _ := procCryptCATAdminAcquireContext2.Call(uintptr(unsafe.Pointer(&h)), 0,
			uintptr(unsafe.Pointer(alg)), 0, 0)
		if r != 0 {
			return &catalogAdmin{handle: h, v2: true}, nil
		}
	}
	r, _, e := procCryptCATAdminAcquireContext.Call(uintptr(unsafe.Pointer(&h)), 0, 0)
	if r == 0 {
		return nil, fmt.Errorf("CryptCATAdminAcquireContext: %w", e)
	}
	return &catalogAdmin{handle: h}, nil
}

func (a *catalogAdmin) release() {
	procCryptCATAdminReleaseContext.Call(uintptr(a.handle), 0)
}

func (a *catalogAdmin) hashFile(file windows.Handle) ([]byte, error) {
	buf := make([]byte, maxHashLen)
	size := uint32(len(buf))
	var r uintptr
	var e error
	if a.v2 {
		r, _, e = procCryptCATAdminCalcHashFromFileHandle2.Call(uintptr(a.handle), uintptr(file),
			uintptr(unsafe.Pointer(&size)), uintptr(unsafe.Pointer(&buf[0])), 0)
	} else {
		r, _, e = procCryptCATAdminCalcHashFromFileHandle.Call(uintptr(file),
			uintptr(unsafe.Pointer(&size)), uintptr(unsafe.Pointer(&buf[0])), 0)
	}
	if r == 0 {
		return nil, fmt.Errorf("CryptCATAdminCalcHashFromFileHandle: %w", e)
	}
	if size == 0 || int(size) > len(buf) {
		return nil, fmt.Errorf("CryptCATAdminCalcHashFromFileHandle: hash length %d", size)
	}
	return buf[:size], nil
}

// VerifyCatalog looks the file hash up in the registered catalogs and verifies the member
// against the first catalog that lists it.
func (v *SystemVerifier) VerifyCatalog(path string) error {
	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	file, err := windows.CreateFile(pathPtr, windows.GENERIC_READ,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE|windows.FILE_SHARE_DELETE,
		nil, windows.OPEN_EXISTING, windows.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer windows.CloseHandle(file)

	admin, err := acquireCatalogAdmin()
	if err != nil {
		return err
	}
	defer admin.release()

	hash, err := admin.hashFile(file)
	if err != nil {
		return err
	}

	catInfo, _, _ := procCryptCATAdminEnumCatalogFromHash.Call(uintptr(admin.handle),
		uintptr(unsafe.Pointer(&hash[0])), uintptr(len(hash)), 0, 0)
	if catInfo == 0 {
		return ErrNotSigned
	}
	defer procCryptCATAdminReleaseCatalogContext.Call(uintptr(admin.handle), catInfo, 0)

	info := catalogInfo{Size: uint32(unsafe.Sizeof(catalogInfo{}))}
	r, _, e := procCryptCATCatalogInfoFromContext.Call(catInfo, uintptr(unsafe.Pointer(&info)), 0)
	if r == 0 {
		return fmt.Errorf("CryptCATCatalogInfoFromContext: %w", e)
	}

	tag, err := windows.UTF16PtrFromString(strings.ToUpper(hex.EncodeToString(hash)))
	if err != nil {
		return err
	}

	member := wintrustCatalogInfo{
		Size:                 uint32(unsafe.Sizeof(wintrustCatalogInfo{})),
		CatalogFilePath:      &info.CatalogFile[0],
		MemberTag:            tag,
		MemberFilePath:       pathPtr,
		MemberFile:           file,
		CalculatedFileHash:   &hash[0],
		CalculatedFileHashSz: uint32(len(hash)),
	}
	if admin.v2 {
		member.CatAdmin = admin.handle
	}

	data := windows.WinTrustData{
		Size:                            uint32(unsafe.Sizeof(windows.WinTrustData{})),
		UIChoice:                        windows.WTD_UI_NONE,
		RevocationChecks:                windows.WTD_REVOKE_NONE,
		UnionChoice:                     windows.WTD_CHOICE_CATALOG,
		FileOrCatalogOrBlobOrSgnrOrCert: unsafe.Pointer(&member),
		StateAction:                     windows.WTD_STATEACTION_VERIFY,
		ProvFlags:                       windows.WTD_CACHE_ONLY_URL_RETRIEVAL,
	}

	err = verifyTrust(&data)
	runtime.KeepAlive(&member)
	runtime.KeepAlive(&info)
	if err != nil {
		return fmt.Errorf("%w: catalog %s: %v", ErrNotSigned, windows.UTF16ToString(info.CatalogFile[:]), err)
	}
	return nil
}
