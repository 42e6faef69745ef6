//go:build windows

package collector

import (
	"fmt"
	"runtime"
	"time"

	ole "github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"

	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// WMISessionSource enumerates Win32_LogonSession, used when LSA access is denied
type WMISessionSource struct{}

// NewWMISessionSource creates the fallback session source
func NewWMISessionSource() *WMISessionSource {
	return &WMISessionSource{}
}

// Sessions implements SessionSource
func (s *WMISessionSource) Sessions() ([]types.LogonSession, error) {
	startTime := time.Now()
	rows, err := wmiQueryFields(wmiNamespace, wmiSessionsQuery, wmiSessionFields)
	if err != nil {
		return nil, err
	}
	sessions := sessionsFromWMIRows(rows)
	logger.Debug("WMI: %d of %d logon sessions usable", len(sessions), len(rows))
	logger.Timing("WMISessionSource.Sessions", startTime)
	return sessions, nil
}

// wmiQueryFields runs a WQL query and returns the requested properties of every row as strings
func wmiQueryFields(namespace, query string, fields []string) ([]map[string]string, error) {
	// COM apartments are per thread
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		// S_FALSE means the thread was already initialized
		if oleErr, ok := err.(*ole.OleError); !ok || oleErr.Code() != 0x00000001 {
			return nil, fmt.Errorf("CoInitializeEx: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return nil, fmt.Errorf("create SWbemLocator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return nil, fmt.Errorf("query IDispatch: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", nil, namespace)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", namespace, err)
	}
	service := serviceRaw.ToIDispatch()
	defer service.Release()

	resultRaw, err := oleutil.CallMethod(service, "ExecQuery", query)
	if err != nil {
		return nil, fmt.Errorf("ExecQuery %q: %w", query, err)
	}
	result := resultRaw.ToIDispatch()
	defer result.Release()

	countVal, err := oleutil.GetProperty(result, "Count")
	if err != nil {
		return nil, fmt.Errorf("get Count: %w", err)
	}
	count := int(countVal.Val)

	rows := make([]map[string]string, 0, count)
	for i := 0; i < count; i++ {
		itemRaw, err := oleutil.CallMethod(result, "ItemIndex", i)
		if err != nil {
			continue
		}
		item := itemRaw.ToIDispatch()

		row := make(map[string]string, len(fields))
		for _, field := range fields {
			val, err := oleutil.GetProperty(item, field)
			if err != nil {
				continue
			}
			if v := val.Value(); v != nil {
				row[field] = fmt.Sprintf("%v", v)
			}
			val.Clear()
		}
		item.Release()
		rows = append(rows, row)
	}
	return rows, nil
}
