package sema

import (
	"sync"

	"refine/internal/ast"
)

// preludeSeed keeps prelude node IDs apart from program node IDs.
const preludeSeed uint64 = 0x7072656c75646521

// opaqueTypes are resource types only the prelude can produce.
var opaqueTypes = []string{"FileHandle"}

// preludeModule declares the built-in functions with the same syntax user code
// uses; bodies are empty and never checked.
func preludeModule() *ast.Fragment {
	param := func(name, typ string) *ast.Fragment { return ast.Param(name, ast.TypeName(typ)) }
	handle := func() *ast.Fragment { return ast.Linear(ast.TypeName("FileHandle")) }
	return ast.Module(
		ast.Fn("print", ast.FnSig{
			Params:  []*ast.Fragment{param("s", "String")},
			Effects: []string{"IO"},
		}),
		ast.Fn("read_line", ast.FnSig{
			Result:  ast.TypeName("String"),
			Effects: []string{"IO"},
		}),
		ast.Fn("len", ast.FnSig{
			Params: []*ast.Fragment{ast.Param("xs", ast.ListOf(ast.TypeAuto()))},
			Result: ast.TypeName("Int"),
		}),
		ast.Fn("contains", ast.FnSig{
			Params: []*ast.Fragment{ast.Param("xs", ast.ListOf(ast.TypeAuto())), ast.Param("x", ast.TypeAuto())},
			Result: ast.TypeName("Bool"),
		}),
		ast.Fn("open_file", ast.FnSig{
			Params:  []*ast.Fragment{param("path", "String")},
			Result:  handle(),
			Effects: []string{"IO"},
		}),
		ast.Fn("close_file", ast.FnSig{
			Params:  []*ast.Fragment{ast.Param("h", handle())},
			Effects: []string{"IO"},
		}),
		ast.Fn("abs", ast.FnSig{
			Params: []*ast.Fragment{param("x", "Int")},
			Result: ast.Refined(ast.TypeName("Int"), "v", ast.Bin(">=", ast.Ident("v"), ast.Int(0))),
		}),
		ast.Fn("random_int", ast.FnSig{
			Params:   []*ast.Fragment{param("lo", "Int"), param("hi", "Int")},
			Result:   ast.TypeName("Int"),
			Requires: []*ast.Fragment{ast.Bin("<", ast.Ident("lo"), ast.Ident("hi"))},
			Ensures: []*ast.Fragment{ast.Bin("&&",
				ast.Bin("<=", ast.Ident("lo"), ast.Ident("result")),
				ast.Bin("<", ast.Ident("result"), ast.Ident("hi")),
			)},
			Effects: []string{"Random"},
		}),
	)
}

var prelude = sync.OnceValue(func() *ast.Tree {
	return ast.MustBuild(preludeSeed, preludeModule())
})
