package resolver

// denied holds symbol names that are never treated as user-defined
// dependencies: language builtins, framework helpers, SQL keywords, and
// common column names that show up inside string literals. A user
// symbol shadowing one of these is deliberately ignored (deny-list
// wins), which is a known false-negative source.
var denied = map[string]bool{}

func init() {
	for _, group := range [][]string{builtins, frameworkHelpers, dbAPI, sqlKeywords, commonColumns} {
		for _, name := range group {
			denied[name] = true
		}
	}
}

var builtins = []string{
	"print", "len", "str", "int", "float", "bool", "list", "dict", "set",
	"tuple", "range", "open", "format", "isinstance", "issubclass", "type",
	"super", "enumerate", "zip", "map", "filter", "sorted", "reversed",
	"min", "max", "sum", "abs", "round", "getattr", "setattr", "hasattr",
	"repr", "hash", "iter", "next", "vars", "globals", "locals", "input",
	"bytes", "bytearray", "frozenset", "complex", "divmod", "pow", "ord", "chr",
}

var frameworkHelpers = []string{
	"jsonify", "request", "abort", "render_template", "redirect", "url_for",
	"make_response", "send_file", "send_from_directory", "flash", "session",
	"Flask", "Blueprint", "route",
}

var dbAPI = []string{
	"connect", "cursor", "execute", "executemany", "fetchone", "fetchall",
	"fetchmany", "commit", "rollback", "close",
}

var sqlKeywords = []string{
	"select", "insert", "update", "delete", "from", "where", "join",
	"values", "into", "order", "group", "having", "limit", "offset",
}

var commonColumns = []string{
	"id", "name", "email", "user_id", "created_at", "updated_at", "status",
	"data", "result", "value", "count", "total", "date", "time", "key",
	"item", "items", "error", "message", "text", "title", "description",
	"price", "quantity", "amount", "user", "password", "username", "token",
	"content", "get", "post", "put", "append", "extend", "pop", "keys",
	"strip", "split", "replace", "startswith", "endswith", "lower", "upper",
	"loads", "dumps", "json", "decode", "encode", "copy", "index",
}

// Denied reports whether a symbol name is on the deny-list.
func Denied(name string) bool {
	return denied[name]
}
