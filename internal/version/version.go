package version

// Version is the current version of warpcall. Release builds override it with:
//   go build -ldflags="-X 'github.com/BioHazard786/Warpcall/internal/version.Version=v1.0.0'"
var Version = "dev"

// ClientType is announced to the control channel peer so mixed versions can be told apart.
const ClientType = "cli"
