package banner

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"retrospect/pkg/config"
)

const banner = `
██████╗ ███████╗████████╗██████╗  ██████╗ ███████╗██████╗ ███████╗ ██████╗████████╗
██╔══██╗██╔════╝╚══██╔══╝██╔══██╗██╔═══██╗██╔════╝██╔══██╗██╔════╝██╔════╝╚══██╔══╝
██████╔╝█████╗     ██║   ██████╔╝██║   ██║███████╗██████╔╝█████╗  ██║        ██║
██╔══██╗██╔══╝     ██║   ██╔══██╗██║   ██║╚════██║██╔═══╝ ██╔══╝  ██║        ██║
██║  ██║███████╗   ██║   ██║  ██║╚██████╔╝███████║██║     ███████╗╚██████╗   ██║
╚═╝  ╚═╝╚══════╝   ╚═╝   ╚═╝  ╚═╝ ╚═════╝ ╚══════╝╚═╝     ╚══════╝ ╚═════╝   ╚═╝
`

// PrintWithEff prints the startup banner from the effective config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	archive := eff.ArchivePath
	if archive == "" && eff.Config != nil {
		archive = eff.Config.Archive.ChatDBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Archive:  %s\n", archive)
	fmt.Printf("Data:     %s\n", eff.DataPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET /v1/conversations?month=<m>&day=<d>        - Chats active on that day")
	fmt.Println("GET /v1/conversations/{id}/messages?month&day  - Day timeline, grouped by year")
	fmt.Println("GET /v1/attachments/{id}                       - Attachment bytes (HEIC served as JPEG)")
	fmt.Println("GET /viewer/                                   - Browser UI")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://%s/v1/conversations?month=8&day=30'\n", addr)
	fmt.Printf("curl 'http://%s/v1/conversations/12/messages?month=8&day=30'\n", addr)

	fmt.Println("\n== Production? =================================================")
	if eff.Config != nil {
		if n := len(eff.Config.Security.APIKeys); n > 0 {
			fmt.Printf("- API keys: OK (%d)\n", n)
		} else {
			fmt.Println("- API keys: none (endpoints are open; fine on localhost)")
		}
		if eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
			fmt.Println("- TLS: configured")
		} else {
			fmt.Println("- TLS: unconfigured")
		}
		if max := uint64(eff.Config.Cache.MaxSize); max > 0 {
			fmt.Printf("- Media cache cap: %s\n", humanize.Bytes(max))
		} else {
			fmt.Println("- Media cache cap: unbounded")
		}
		if eff.Config.Archive.ContactsDir != "" {
			fmt.Printf("- Contacts: %s\n", eff.Config.Archive.ContactsDir)
		} else {
			fmt.Println("- Contacts: default AddressBook location")
		}
	}

	fmt.Println("\n== Logs: =================================================")
}
