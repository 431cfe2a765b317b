package redfish

import (
	"context"
	"fmt"
	"sync"

	"github.com/stmcginnis/gofish/common"
	"github.com/stmcginnis/gofish/redfish"
)

// MockClient provides a mock implementation of the Client interface for
// exploration and reconciler tests that never touch a live BMC.
type MockClient struct {
	mu sync.Mutex

	// Mockable fields
	SystemInfo       *SystemInfo
	ChassisInfo      []ChassisInfo
	Managers         []ManagerInfo
	FirmwareInv      map[string]string
	BIOSAttrs        map[string]interface{}
	PowerState       redfish.PowerState
	SecureBootEnable bool
	BootOrder        []string
	NetworkAddrs     []NetworkAddress
	ShouldFail       map[string]error // method name -> error to simulate
	InsertedISO      string
	BootSourceIsISO  bool
	BootSourceIsPXE  bool
	BootParameters   []string
	BootAnnotations  map[string]string

	// Counters
	CloseCalled      bool
	RebootBMCCalled  bool
	SetBootOrderCall int
	EjectMediaCalled bool
}

// NewMockClient creates a new mock client with default values.
func NewMockClient() *MockClient {
	return &MockClient{
		SystemInfo: &SystemInfo{
			Manufacturer: "MockInc",
			Model:        "MockSystem",
			SerialNumber: "MOCK12345",
			Status:       common.Status{State: common.EnabledState},
		},
		Managers:   []ManagerInfo{{ID: "BMC", FirmwareVersion: "1.0.0"}},
		PowerState: redfish.OffPowerState,
		BootOrder:  []string{"Boot0001", "Boot0002"},
		ShouldFail: make(map[string]error),
	}
}

func (m *MockClient) failIfNeeded(methodName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ShouldFail[methodName]; ok {
		return err
	}
	return nil
}

func (m *MockClient) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	if err := m.failIfNeeded("GetSystemInfo"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SystemInfo, nil
}

func (m *MockClient) GetChassisInfo(ctx context.Context) ([]ChassisInfo, error) {
	if err := m.failIfNeeded("GetChassisInfo"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ChassisInfo, nil
}

func (m *MockClient) GetManagers(ctx context.Context) ([]ManagerInfo, error) {
	if err := m.failIfNeeded("GetManagers"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Managers, nil
}

func (m *MockClient) GetFirmwareInventory(ctx context.Context) (map[string]string, error) {
	if err := m.failIfNeeded("GetFirmwareInventory"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FirmwareInv, nil
}

func (m *MockClient) GetBIOSAttributes(ctx context.Context) (map[string]interface{}, error) {
	if err := m.failIfNeeded("GetBIOSAttributes"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BIOSAttrs, nil
}

func (m *MockClient) GetPowerState(ctx context.Context) (redfish.PowerState, error) {
	if err := m.failIfNeeded("GetPowerState"); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PowerState, nil
}

func (m *MockClient) SetPowerState(ctx context.Context, state redfish.PowerState) error {
	if err := m.failIfNeeded("SetPowerState"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PowerState = state
	return nil
}

func (m *MockClient) RebootBMC(ctx context.Context) error {
	if err := m.failIfNeeded("RebootBMC"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RebootBMCCalled = true
	return nil
}

func (m *MockClient) GetSecureBootEnabled(ctx context.Context) (bool, error) {
	if err := m.failIfNeeded("GetSecureBootEnabled"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SecureBootEnable, nil
}

func (m *MockClient) GetBootOrder(ctx context.Context) ([]string, error) {
	if err := m.failIfNeeded("GetBootOrder"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BootOrder, nil
}

func (m *MockClient) SetBootOrder(ctx context.Context, order []string) error {
	if err := m.failIfNeeded("SetBootOrder"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BootOrder = order
	m.SetBootOrderCall++
	return nil
}

func (m *MockClient) SetBootSourceISO(ctx context.Context, isoURL string) error {
	if err := m.failIfNeeded("SetBootSourceISO"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertedISO != "" && m.InsertedISO != isoURL {
		return fmt.Errorf("mock error: different media already inserted (%s)", m.InsertedISO)
	}
	m.InsertedISO = isoURL
	m.BootSourceIsISO = true
	m.BootSourceIsPXE = false
	return nil
}

func (m *MockClient) SetBootSourcePXE(ctx context.Context) error {
	if err := m.failIfNeeded("SetBootSourcePXE"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BootSourceIsPXE = true
	m.BootSourceIsISO = false
	return nil
}

func (m *MockClient) EjectVirtualMedia(ctx context.Context) error {
	if err := m.failIfNeeded("EjectVirtualMedia"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EjectMediaCalled = true
	m.InsertedISO = ""
	m.BootSourceIsISO = false
	return nil
}

func (m *MockClient) SetBootParameters(ctx context.Context, params []string) error {
	return m.SetBootParametersWithAnnotations(ctx, params, nil)
}

func (m *MockClient) SetBootParametersWithAnnotations(ctx context.Context, params []string, annotations map[string]string) error {
	if err := m.failIfNeeded("SetBootParameters"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BootParameters = params
	m.BootAnnotations = annotations
	return nil
}

func (m *MockClient) GetNetworkAddresses(ctx context.Context) ([]NetworkAddress, error) {
	if err := m.failIfNeeded("GetNetworkAddresses"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NetworkAddrs, nil
}

func (m *MockClient) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
}
