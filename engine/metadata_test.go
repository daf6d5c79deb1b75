package engine

import (
	"testing"

	"github.com/franksops/vmshift/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTemplate() *api.Template {
	return &api.Template{
		ID:          "300",
		Description: "web tier",
		Networks: []api.Network{
			{ID: "n1", Subnet: "10.0.0.0/24", Domain: "corp.example"},
			{ID: "n2", Subnet: "192.168.8.0/22", Domain: "lab.example"},
		},
	}
}

func TestExportableVM_Automatic(t *testing.T) {
	vm := &api.VM{
		ID:   "42",
		Name: "web-1",
		Interfaces: []api.Interface{
			{NetworkID: "n2", NetworkType: api.NetworkAutomatic, IP: "192.168.8.20", Hostname: "web1"},
		},
		Credentials: []api.Credential{{Text: "root / pw"}},
	}

	md, err := ExportableVM(vm, testTemplate())
	require.NoError(t, err)
	assert.Equal(t, &Metadata{
		TemplateName:        "web-1",
		TemplateDescription: "web tier",
		NetworkDomain:       "lab.example",
		NetworkSubnet:       "192.168.8.0/22",
		InterfaceIP:         "192.168.8.20",
		InterfaceHostname:   "web1",
		Credentials:         []string{"root / pw"},
	}, md)
}

func TestExportableVM_Manual(t *testing.T) {
	vm := &api.VM{
		Name: "db",
		Interfaces: []api.Interface{
			{NetworkID: "n1", NetworkType: api.NetworkManual, IP: "10.0.0.77", Hostname: "db-primary"},
		},
	}

	md, err := ExportableVM(vm, testTemplate())
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", md.InterfaceIP)
	assert.Equal(t, DefaultHostname, md.InterfaceHostname)
	assert.Equal(t, "10.0.0.0/24", md.NetworkSubnet)
	assert.Equal(t, "corp.example", md.NetworkDomain)
}

func TestExportableVM_Unattached(t *testing.T) {
	vm := &api.VM{
		Name:       "lonely",
		Interfaces: []api.Interface{{NetworkType: "", Hostname: "lonely-host"}},
	}

	tmpl := testTemplate()
	tmpl.Description = ""
	md, err := ExportableVM(vm, tmpl)
	require.NoError(t, err)
	assert.Equal(t, "lonely", md.TemplateDescription)
	assert.Equal(t, DefaultIP, md.InterfaceIP)
	assert.Equal(t, DefaultHostname, md.InterfaceHostname)
	assert.Equal(t, "host-1", md.InterfaceHostname)
	assert.Equal(t, DefaultSubnet, md.NetworkSubnet)
	assert.Equal(t, DefaultDomain, md.NetworkDomain)
}

func TestExportableVM_NoInterfaces(t *testing.T) {
	md, err := ExportableVM(&api.VM{Name: "bare"}, testTemplate())
	require.NoError(t, err)
	assert.Equal(t, DefaultIP, md.InterfaceIP)
	assert.Equal(t, DefaultHostname, md.InterfaceHostname)
	assert.Equal(t, DefaultSubnet, md.NetworkSubnet)
	assert.Equal(t, DefaultDomain, md.NetworkDomain)
	assert.Nil(t, md.Credentials)
}

func TestExportableVM_MissingNetwork(t *testing.T) {
	vm := &api.VM{
		Interfaces: []api.Interface{{NetworkID: "gone", NetworkType: api.NetworkAutomatic}},
	}
	_, err := ExportableVM(vm, testTemplate())
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}
