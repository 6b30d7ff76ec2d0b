package evidence

import "github.com/ShivamLahoty/MemHawk/pkg/catalog"

// concept maps one canonical field to the source keys seen across
// Volatility versions and renderers, in order of preference.
type concept struct {
	name    string
	aliases []string
}

type table struct {
	concepts []concept
	// every group needs at least one matched concept for an item to count
	required [][]string
	line     func(Record) string
}

var tables = map[catalog.Category]table{
	catalog.Process: {
		concepts: []concept{
			{"name", []string{"ImageFileName", "name", "Name"}},
			{"pid", []string{"PID", "pid"}},
			{"ppid", []string{"PPID", "ppid", "Parent"}},
			{"create_time", []string{"CreateTime", "create_time"}},
		},
		required: [][]string{{"name"}, {"pid"}},
		line:     processLine,
	},
	catalog.File: {
		concepts: []concept{
			{"name", []string{"Name", "path", "name", "FileName"}},
			{"size", []string{"Size", "size"}},
		},
		required: [][]string{{"name"}},
		line:     fileLine,
	},
	catalog.Network: {
		concepts: []concept{
			{"local_addr", []string{"LocalAddr", "local_addr", "LocalAddress"}},
			{"local_port", []string{"LocalPort", "local_port", "LocalPortNumber"}},
			{"foreign_addr", []string{"ForeignAddr", "remote_addr", "RemoteAddr", "RemoteAddress"}},
			{"foreign_port", []string{"ForeignPort", "remote_port", "RemotePort", "RemotePortNumber"}},
			{"state", []string{"State", "state"}},
			{"pid", []string{"PID", "pid"}},
			{"owner", []string{"Owner", "owner", "Process"}},
		},
		required: [][]string{{"local_addr", "foreign_addr"}},
		line:     networkLine,
	},
	catalog.Registry: {
		concepts: []concept{
			{"name", []string{"Name", "name"}},
			{"path", []string{"FileFullPath", "Path", "path"}},
			{"key", []string{"Key", "key"}},
			{"data", []string{"Data", "data"}},
		},
		required: [][]string{{"name", "path", "key"}},
		line:     genericLine("Registry"),
	},
	catalog.Malware: {
		concepts: []concept{
			{"process", []string{"Process", "ImageFileName", "process"}},
			{"pid", []string{"PID", "pid"}},
			{"protection", []string{"Protection", "protection"}},
			{"tag", []string{"Tag", "tag"}},
		},
		required: [][]string{{"process", "pid"}},
		line:     genericLine("Finding"),
	},
}
