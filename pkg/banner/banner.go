package banner

import (
	"fmt"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██║     ███████║███████║   ██║   ███████╗ ╚████╔╝ ██║╚██╗██║██║
██║     ██╔══██║██╔══██║   ██║   ╚════██║  ╚██╔╝  ██║ ╚████║██║
╚██████╗██║  ██║██║  ██║   ██║   ███████║   ██║   ██║  ╚═╝██║╚██████╗
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚══════╝   ╚═╝   ╚═╝   ╚═╝ ╚═╝ ╚═════╝
`

// Print shows the relay startup banner with the effective listen address
// and store path.
func Print(addr, storePath, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:    %s\n", addr)
	fmt.Printf("Store:     %s\n", storePath)
	if version != "" {
		fmt.Printf("Version:   %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET /ws/{room}  - websocket: history frame on join, then live messages")
	fmt.Println("GET /healthz    - liveness probe")
	fmt.Println("GET /metrics    - prometheus metrics")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("websocat 'ws://%s/ws/room-42'\n", addr)
	fmt.Printf("curl 'http://%s/healthz'\n", addr)
}
