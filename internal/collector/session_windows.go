//go:build windows

package collector

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

var (
	modsecur32 = windows.NewLazySystemDLL("secur32.dll")

	procLsaEnumerateLogonSessions = modsecur32.NewProc("LsaEnumerateLogonSessions")
	procLsaGetLogonSessionData    = modsecur32.NewProc("LsaGetLogonSessionData")
	procLsaFreeReturnBuffer       = modsecur32.NewProc("LsaFreeReturnBuffer")
)

type lsaUnicodeString struct {
	Length        uint16
	MaximumLength uint16
	Buffer        *uint16
}

func (s lsaUnicodeString) String() string {
	if s.Buffer == nil || s.Length == 0 {
		return ""
	}
	return windows.UTF16ToString(unsafe.Slice(s.Buffer, s.Length/2))
}

// securityLogonSessionData mirrors the leading fields of SECURITY_LOGON_SESSION_DATA
type securityLogonSessionData struct {
	Size                  uint32
	LogonID               windows.LUID
	UserName              lsaUnicodeString
	LogonDomain           lsaUnicodeString
	AuthenticationPackage lsaUnicodeString
	LogonType             uint32
	Session               uint32
	Sid                   *windows.SID
	LogonTime             int64
}

// LSASessionSource enumerates logon sessions through LsaEnumerateLogonSessions
type LSASessionSource struct{}

// NewLSASessionSource creates the primary session source
func NewLSASessionSource() *LSASessionSource {
	return &LSASessionSource{}
}

// Sessions implements SessionSource. Sessions whose data cannot be read are skipped.
func (s *LSASessionSource) Sessions() ([]types.LogonSession, error) {
	startTime := time.Now()
	logger.APICall("LsaEnumerateLogonSessions")

	if err := procLsaEnumerateLogonSessions.Find(); err != nil {
		return nil, fmt.Errorf("LsaEnumerateLogonSessions: %w", err)
	}

	var count uint32
	var list *windows.LUID
	r, _, _ := procLsaEnumerateLogonSessions.Call(
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&list)),
	)
	if r != 0 {
		err := fmt.Errorf("LsaEnumerateLogonSessions: %w", windows.NTStatus(r))
		logger.APIResult("LsaEnumerateLogonSessions", nil, err)
		return nil, err
	}
	if list == nil {
		return nil, nil
	}
	defer procLsaFreeReturnBuffer.Call(uintptr(unsafe.Pointer(list)))

	luids := unsafe.Slice(list, count)
	sessions := make([]types.LogonSession, 0, count)
	for i := range luids {
		session, ok := readLogonSession(&luids[i])
		if !ok {
			continue
		}
		sessions = append(sessions, session)
	}

	logger.APIResult("LsaEnumerateLogonSessions", fmt.Sprintf("%d sessions", len(sessions)), nil)
	logger.Timing("LSASessionSource.Sessions", startTime)
	return sessions, nil
}

func readLogonSession(luid *windows.LUID) (types.LogonSession, bool) {
	var data *securityLogonSessionData
	r, _, _ := procLsaGetLogonSessionData.Call(
		uintptr(unsafe.Pointer(luid)),
		uintptr(unsafe.Pointer(&data)),
	)
	if r != 0 || data == nil {
		return types.LogonSession{}, false
	}
	defer procLsaFreeReturnBuffer.Call(uintptr(unsafe.Pointer(data)))

	id := uint64(uint32(luid.HighPart))<<32 | uint64(luid.LowPart)
	return types.LogonSession{
		LogonID:     id,
		UserName:    data.UserName.String(),
		Domain:      data.LogonDomain.String(),
		LogonType:   data.LogonType,
		StartTime:   filetimeToTime(uint64(data.LogonTime)),
		Interactive: types.IsInteractiveLogonType(data.LogonType),
	}, true
}

// DefaultSessionSource is LSA with a WMI fallback
func DefaultSessionSource() SessionSource {
	return NewFallbackSessionSource(NewLSASessionSource(), NewWMISessionSource())
}
