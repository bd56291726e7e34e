package main

import "github.com/yungbote/chatstream-backend/internal/cli"

func main() {
	cli.Execute()
}
