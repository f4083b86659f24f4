package dsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// deltaLexer tokenizes .delta files. Idents may start with digits so that
// migration names such as 0001_initial lex as one token; a run of digits
// alone is a Number.
var deltaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `(?:#|//)[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `\p{N}*[\p{L}_][\p{L}\p{N}_]*`},
	{Name: "Number", Pattern: `-?\d+`},
	{Name: "Punct", Pattern: `[{}().,=]`},
	{Name: "Newline", Pattern: `[\r\n]+`},
	{Name: "Whitespace", Pattern: `[ \t]+`},
})

// File is the parse tree of one .delta file.
type File struct {
	Pos        lexer.Position
	Migrations []*Migration `@@*`
}

// Migration is one `migration app name { ... }` block.
type Migration struct {
	Pos        lexer.Position
	App        string       `"migration" @Ident`
	Name       string       `@Ident`
	Initial    bool         `@"initial"?`
	Statements []*Statement `"{" @@* "}"`
}

// Statement is a dependency or an operation.
type Statement struct {
	Pos         lexer.Position
	Depends     *Depends     `  "depends" @@`
	CreateModel *CreateModel `| "create" "model" @@`
	DeleteModel *string      `| "delete" "model" @Ident`
	AddField    *FieldStmt   `| "add" "field" @@`
	RemoveField *FieldPath   `| "remove" "field" @@`
	AlterField  *FieldStmt   `| "alter" "field" @@`
}

// Depends names a prior migration or a swappable setting.
type Depends struct {
	Setting string `  "swappable" @Ident`
	App     string `| @Ident`
	Name    string `  @Ident`
}

// CreateModel declares a model and its fields.
type CreateModel struct {
	Name   string       `@Ident`
	Table  *string      `( "table" @String )?`
	Fields []*FieldDecl `"{" @@* "}"`
}

// FieldDecl is `name kind(options)` inside a model block.
type FieldDecl struct {
	Pos  lexer.Position
	Name string     `@Ident`
	Spec *FieldSpec `@@`
}

// FieldPath is `model.field`.
type FieldPath struct {
	Model string `@Ident "."`
	Name  string `@Ident`
}

// FieldStmt is `model.field kind(options)`.
type FieldStmt struct {
	Pos   lexer.Position
	Model string     `@Ident "."`
	Name  string     `@Ident`
	Spec  *FieldSpec `@@`
}

// FieldSpec is a field kind with optional keyword arguments.
type FieldSpec struct {
	Kind    string    `@Ident`
	Options []*Option `( "(" ( @@ ( "," @@ )* )? ")" )?`
}

// Option is `key=value`.
type Option struct {
	Pos   lexer.Position
	Key   string `@Ident "="`
	Value *Value `@@`
}

// Value is a literal or a model reference.
type Value struct {
	String  *string `  @String`
	Number  *int    `| @Number`
	Bool    *string `| @( "true" | "false" )`
	Null    bool    `| @"null"`
	Setting *string `| "setting" @Ident`
	Ref     *string `| @( Ident ( "." Ident )? )`
}

var parser = participle.MustBuild[File](
	participle.Lexer(deltaLexer),
	participle.Elide("Whitespace", "Newline", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(4),
)
