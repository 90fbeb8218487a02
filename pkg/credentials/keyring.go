package credentials

import (
	"os"

	zkr "github.com/zalando/go-keyring"
)

// osKeyring is the default KeyringBackend, backed by the OS secret
// store via zalando/go-keyring. Availability is probed once at
// construction with a harmless set/get/delete cycle; disable with
// AGENTVAULT_KEYRING_DISABLED=1 to skip the probe entirely (useful in
// CI sandboxes with no secret service running).
type osKeyring struct{}

// NewOSKeyring returns the OS-backed keyring. Pass it to WithKeyring;
// the option itself re-checks Available() before enabling it.
func NewOSKeyring() KeyringBackend {
	return osKeyring{}
}

func (osKeyring) Get(service, user string) (string, error) {
	return zkr.Get(service, user)
}

func (osKeyring) Set(service, user, value string) error {
	return zkr.Set(service, user, value)
}

func (osKeyring) Available() bool {
	if os.Getenv("AGENTVAULT_KEYRING_DISABLED") == "1" {
		return false
	}

	const probeService = "agentvault:probe"
	const probeUser = "probe"
	if err := zkr.Set(probeService, probeUser, "probe"); err != nil {
		return false
	}
	_, getErr := zkr.Get(probeService, probeUser)
	_ = zkr.Delete(probeService, probeUser)
	return getErr == nil
}
