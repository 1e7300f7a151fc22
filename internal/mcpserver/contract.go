package mcpserver

// SyntaxReference describes the outline syntax the resolver and tag
// extractor understand.
const SyntaxReference = `# Outline Syntax Reference

## Blocks

A block is registered when its line ends with a caret id or is followed by
an id property:

` + "```" + `markdown
- Some thought ^6f1c2a9e-0b3d-4c55-9a10-2f0c7e1d4b88
- Another thought
  id:: 0d5c1f7e-8a2b-4e6f-9c3d-1a2b3c4d5e6f
` + "```" + `

Org-style notes use a property drawer with ` + "`:id:`" + `.

## Placeholders

- ` + "`((uuid))`" + ` is replaced by the block text. Replacements are rescanned,
  so references inside block text expand too, up to the configured bound.
- ` + "`{{embed ((uuid))}}`" + ` is replaced once; embeds inside the inserted text
  are left as they are.
- An unknown id becomes ` + "`(block not found: uuid)`" + `.
- ` + "`[[Page]]`" + `, ` + "`#[[Page]]`" + ` and ` + "`{{embed [[Page]]}}`" + ` render as *Page*;
  ` + "`[[Page|Alias]]`" + ` renders as *Alias*.

## Tags

Tags are collected in first-seen order from:

- ` + "`#tag`" + ` and ` + "`#[[multi word]]`" + ` hashtags,
- ` + "`[[x]]`" + ` links whose target is a single token or contains a slash,
- ` + "`tags:: a, b`" + ` properties and ` + "`#+tags:`" + ` / ` + "`#+filetags: :a:b:`" + ` headers,
- front matter ` + "`tags`" + `.

Code spans and fenced code are ignored. A tag ` + "`a/b/c`" + ` maps to the folder
` + "`a/b/c`" + ` in folder exports.

## Media

` + "`![alt](path)`" + `, ` + "`<img src=\"path\">`" + ` and ` + "`![[file]]`" + ` are resolved relative
to the note, then by file name anywhere in the corpus. Remote URLs are kept.
`
