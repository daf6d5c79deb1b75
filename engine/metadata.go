package engine

import (
	"errors"
	"fmt"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/netutil"
)

// Guest network defaults used when the source network cannot be reproduced.
const (
	DefaultIP       = "10.0.0.1"
	DefaultHostname = "host-1"
	DefaultSubnet   = "10.0.0.0/24"
	DefaultDomain   = "test.net"
)

// MetadataFile is written next to every downloaded image.
const MetadataFile = "vm.yaml"

// ErrNetworkNotFound means an attached interface names a network the template
// does not have.
var ErrNetworkNotFound = errors.New("network for VM interface not found")

// Metadata describes a downloaded VM. Its keys double as import parameters
// when the directory is uploaded again.
type Metadata struct {
	TemplateName        string   `yaml:"template_name"`
	TemplateDescription string   `yaml:"template_description"`
	NetworkDomain       string   `yaml:"network_domain"`
	NetworkSubnet       string   `yaml:"network_subnet"`
	InterfaceIP         string   `yaml:"interface_ip"`
	InterfaceHostname   string   `yaml:"interface_hostname"`
	Credentials         []string `yaml:"credentials,omitempty"`
}

// ExportableVM derives guest network metadata from the first interface of vm.
// Automatic networks keep their real addressing. Manual networks keep the
// subnet and domain but get the subnet's first host address and the default
// hostname, since the destination will not reproduce a manual network.
// Unattached interfaces and VMs without interfaces get defaults.
func ExportableVM(vm *api.VM, tmpl *api.Template) (*Metadata, error) {
	md := &Metadata{
		TemplateName:        vm.Name,
		TemplateDescription: vm.Name,
		NetworkDomain:       DefaultDomain,
		NetworkSubnet:       DefaultSubnet,
		InterfaceIP:         DefaultIP,
		InterfaceHostname:   DefaultHostname,
	}
	if tmpl != nil && tmpl.Description != "" {
		md.TemplateDescription = tmpl.Description
	}
	for _, c := range vm.Credentials {
		md.Credentials = append(md.Credentials, c.Text)
	}

	if len(vm.Interfaces) == 0 {
		return md, nil
	}
	iface := vm.Interfaces[0]

	switch iface.NetworkType {
	case api.NetworkAutomatic, api.NetworkManual:
		network, ok := findNetwork(tmpl, iface.NetworkID)
		if !ok {
			return nil, ErrNetworkNotFound
		}
		md.NetworkSubnet = network.Subnet
		md.NetworkDomain = network.Domain

		if iface.NetworkType == api.NetworkAutomatic {
			md.InterfaceIP = iface.IP
			md.InterfaceHostname = iface.Hostname
			return md, nil
		}

		ip, err := netutil.MinHost(network.Subnet)
		if err != nil {
			return nil, fmt.Errorf("manual network: %w", err)
		}
		md.InterfaceIP = ip
		md.InterfaceHostname = DefaultHostname

	}
	return md, nil
}

func findNetwork(tmpl *api.Template, id api.ID) (*api.Network, bool) {
	if tmpl == nil {
		return nil, false
	}
	return tmpl.Network(id)
}
