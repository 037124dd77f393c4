package clipboard

const pasteWithSuper = true
