package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はページサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWhoami は保存済みセッションを検証し、ログイン中のユーザーを表示する。
	CommandWhoami Command = "whoami"
	// CommandLogout は保存済みセッションを消去する。
	CommandLogout Command = "logout"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "whoami":
		return CommandWhoami
	case "logout":
		return CommandLogout
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}
